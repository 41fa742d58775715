//go:build integration

package game

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, rdb.Ping(ctx).Err(), "redis is not reachable")
	return rdb
}

func TestRedisPersistence_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	rdb := newRedisClient(t)
	require.NoError(t, rdb.FlushDB(ctx).Err())

	persist := NewRedisStatePersistence(rdb, time.Hour, discardLogger())

	st := InitialState()
	st.Score = 1600
	st.Coins = 16
	st.Level = 2
	st.CurrentPuzzleIndex = 1
	st.TotalAttempts = 4
	st.CompletedPuzzles[7] = struct{}{}
	st.CompletedPuzzles[3] = struct{}{}
	require.NoError(t, persist.Save(ctx, testPlayer, st))

	raw, err := rdb.Get(ctx, "quadclue:"+testPlayer+":game-state").Result()
	require.NoError(t, err)
	require.JSONEq(t, `{"currentPuzzleIndex":1,"score":1600,"coins":16,"level":2,"hintsUsed":0,"totalAttempts":4,"completedPuzzles":[3,7],"gameComplete":false}`, raw)

	got, found, err := persist.Load(ctx, testPlayer)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, st, got)

	require.NoError(t, persist.Clear(ctx, testPlayer))
	_, found, err = persist.Load(ctx, testPlayer)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisPersistence_MalformedIsAbsent(t *testing.T) {
	ctx := context.Background()
	rdb := newRedisClient(t)
	require.NoError(t, rdb.FlushDB(ctx).Err())

	persist := NewRedisStatePersistence(rdb, time.Hour, discardLogger())
	require.NoError(t, rdb.Set(ctx, "quadclue:"+testPlayer+":game-state", "{not json", time.Hour).Err())

	_, found, err := persist.Load(ctx, testPlayer)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRedisPersistence_SessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	rdb := newRedisClient(t)
	require.NoError(t, rdb.FlushDB(ctx).Err())

	persist := NewRedisStatePersistence(rdb, time.Hour, discardLogger())
	h := newHarness(t, nil, paintView(), brushView())
	h.engine.persist = persist

	_, err := h.engine.SubmitAnswer(ctx, "PAINT")
	require.NoError(t, err)
	h.emit(1, true, time.Second)
	h.engine.NextPuzzle(ctx)
	want := h.engine.State()

	// "restart": a fresh engine over the same store
	h2 := newHarness(t, nil, paintView(), brushView())
	h2.engine.persist = persist
	require.True(t, h2.engine.Restore(ctx))
	require.Equal(t, want, h2.engine.State())
}
