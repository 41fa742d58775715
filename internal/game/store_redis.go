package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatePersistence stores one ProgressionState per player address.
// Load reports unreadable data as not found.
type StatePersistence interface {
	Save(ctx context.Context, player string, st ProgressionState) error
	Load(ctx context.Context, player string) (ProgressionState, bool, error)
	Clear(ctx context.Context, player string) error
}

type RedisStatePersistence struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewRedisStatePersistence(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *RedisStatePersistence {
	return &RedisStatePersistence{rdb: rdb, ttl: ttl, log: log}
}

func (s *RedisStatePersistence) key(player string) string {
	return fmt.Sprintf("quadclue:%s:game-state", player)
}

func (s *RedisStatePersistence) Save(ctx context.Context, player string, st ProgressionState) error {
	b, err := encodeState(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(player), b, s.ttl).Err()
}

func (s *RedisStatePersistence) Load(ctx context.Context, player string) (ProgressionState, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(player)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ProgressionState{}, false, nil
	}
	if err != nil {
		return ProgressionState{}, false, err
	}

	st, err := decodeState(val)
	if err != nil {
		s.log.Warn("ignoring stored game state", "player", player, "err", err)
		return ProgressionState{}, false, nil
	}
	return st, true, nil
}

func (s *RedisStatePersistence) Clear(ctx context.Context, player string) error {
	return s.rdb.Del(ctx, s.key(player)).Err()
}
