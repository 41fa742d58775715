package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrAddressTaken    = errors.New("address already registered")
	ErrUsernameTaken   = errors.New("username already taken")
)

// Profile binds a display name to a wallet address. Address is stored
// normalized (see codec.NormalizeAddress).
type Profile struct {
	ID        string
	Address   string
	Username  string
	CreatedAt time.Time
}

type ProfileStore struct {
	db *pgxpool.Pool
}

func NewProfileStore(db *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) Create(ctx context.Context, p Profile) (Profile, error) {
	err := s.db.QueryRow(ctx,
		`INSERT INTO players (id, address, username)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		p.ID, p.Address, p.Username,
	).Scan(&p.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "players_username_key" {
			return Profile{}, ErrUsernameTaken
		}
		return Profile{}, ErrAddressTaken
	}
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *ProfileStore) GetByAddress(ctx context.Context, address string) (Profile, error) {
	var p Profile
	err := s.db.QueryRow(ctx,
		`SELECT id, address, username, created_at
		 FROM players WHERE address = $1`,
		address,
	).Scan(&p.ID, &p.Address, &p.Username, &p.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}
