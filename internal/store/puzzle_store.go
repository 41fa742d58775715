package store

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/quadclue/internal/chain"
)

// PuzzleStore reads the indexed puzzle models. Felt columns hold the raw
// hex text exactly as the indexer wrote it; decoding happens in package puzzle.
type PuzzleStore struct {
	db *pgxpool.Pool
}

func NewPuzzleStore(db *pgxpool.Pool) *PuzzleStore {
	return &PuzzleStore{db: db}
}

func (s *PuzzleStore) Puzzles(ctx context.Context) ([]chain.RawPuzzle, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, image_hashes, answer_hash, word_length, available_letters,
		       active, difficulty, creation_time, solve_count, first_solver
		FROM puzzles
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chain.RawPuzzle
	for rows.Next() {
		var (
			id, creation                    int64
			wordLength, solveCount          int32
			images, letters                 []string
			answer, difficulty, firstSolver string
			active                          bool
		)
		if err := rows.Scan(&id, &images, &answer, &wordLength, &letters,
			&active, &difficulty, &creation, &solveCount, &firstSolver); err != nil {
			return nil, err
		}
		out = append(out, chain.RawPuzzle{
			ID:               chain.Felt(strconv.FormatInt(id, 10)),
			ImageHashes:      felts(images),
			AnswerHash:       chain.Felt(answer),
			WordLength:       chain.Felt(strconv.Itoa(int(wordLength))),
			AvailableLetters: felts(letters),
			Active:           active,
			Difficulty:       chain.Felt(difficulty),
			CreationTime:     chain.Felt(strconv.FormatInt(creation, 10)),
			SolveCount:       chain.Felt(strconv.Itoa(int(solveCount))),
			FirstSolver:      chain.Felt(firstSolver),
		})
	}
	return out, rows.Err()
}

func felts(ss []string) []chain.Felt {
	out := make([]chain.Felt, len(ss))
	for i, s := range ss {
		out[i] = chain.Felt(s)
	}
	return out
}
