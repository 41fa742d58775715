package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/quadclue/internal/chain"
	"example.com/quadclue/internal/codec"
	"example.com/quadclue/internal/submission"
)

const (
	alice = "0xa11ce"
	bob   = "0xb0b"
)

type fakeSource struct {
	mu    sync.Mutex
	chans map[string]chan chain.RawGuessEvent
	ctxs  map[string]context.Context
}

func newFakeSource() *fakeSource {
	return &fakeSource{chans: map[string]chan chain.RawGuessEvent{}, ctxs: map[string]context.Context{}}
}

func (f *fakeSource) Subscribe(ctx context.Context, player string) (<-chan chain.RawGuessEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan chain.RawGuessEvent, 16)
	f.chans[player] = ch
	f.ctxs[player] = ctx
	return ch, nil
}

func (f *fakeSource) push(player string, raw chain.RawGuessEvent) {
	f.mu.Lock()
	ch := f.chans[codec.NormalizeAddress(player)]
	f.mu.Unlock()
	ch <- raw
}

func (f *fakeSource) ctx(player string) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxs[codec.NormalizeAddress(player)]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func raw(id string, puzzle uint64, player string, correct bool, ts int64) chain.RawGuessEvent {
	return chain.RawGuessEvent{
		EntityID:    id,
		PuzzleID:    chain.Felt(strconv.FormatUint(puzzle, 10)),
		Player:      chain.Felt(player),
		IsCorrect:   correct,
		GuessLength: "5",
		Timestamp:   chain.Felt(strconv.FormatInt(ts, 10)),
	}
}

func newBoundAdapter(t *testing.T, player string) (*Adapter, *fakeSource) {
	t.Helper()
	src := newFakeSource()
	a := NewAdapter(src, nil, discardLogger())
	require.NoError(t, a.SetPlayer(context.Background(), player))
	t.Cleanup(a.Close)
	return a, src
}

func TestIngestOrdersAndDedups(t *testing.T) {
	a, _ := newBoundAdapter(t, alice)

	assert.True(t, a.Ingest(raw("e1", 1, alice, false, 100)))
	assert.True(t, a.Ingest(raw("e2", 1, alice, true, 120)))
	assert.True(t, a.Ingest(raw("e3", 2, alice, false, 110)))
	assert.False(t, a.Ingest(raw("e2", 1, alice, true, 120)), "duplicate id")
	assert.False(t, a.Ingest(raw("e4", 1, bob, true, 130)), "foreign player")
	assert.False(t, a.Ingest(raw("", 1, alice, true, 130)), "missing id")
	assert.False(t, a.Ingest(chain.RawGuessEvent{EntityID: "e5", PuzzleID: "zz", Player: alice, Timestamp: "1"}))

	evs := a.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, []string{"e2", "e3", "e1"}, []string{evs[0].ID, evs[1].ID, evs[2].ID})

	latest, ok := a.Latest()
	require.True(t, ok)
	assert.Equal(t, "e2", latest.ID)
	assert.Equal(t, codec.NormalizeAddress(alice), latest.Player)

	byPuzzle := a.ForPuzzle(1)
	require.Len(t, byPuzzle, 2)
	assert.Equal(t, "e2", byPuzzle[0].ID)
	assert.Empty(t, a.ForPuzzle(9))
}

func TestEventsSnapshotIsNotMutated(t *testing.T) {
	a, _ := newBoundAdapter(t, alice)
	a.Ingest(raw("e1", 1, alice, false, 100))
	before := a.Events()
	a.Ingest(raw("e2", 1, alice, false, 200))

	require.Len(t, before, 1)
	assert.Equal(t, "e1", before[0].ID)
	assert.Len(t, a.Events(), 2)
}

func TestFindMatchWindow(t *testing.T) {
	cases := []struct {
		name  string
		ts    int64
		match bool
	}{
		{"same second", 1000, true},
		{"upper bound", 1010, true},
		{"past window", 1011, false},
		{"before submission", 999, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newBoundAdapter(t, alice)
			a.Ingest(raw("e", 3, alice, true, tc.ts))

			_, ok := a.FindMatch(submission.PendingSubmission{PuzzleID: 3, SubmittedAt: 1000})
			assert.Equal(t, tc.match, ok)
		})
	}
}

func TestFindMatchRules(t *testing.T) {
	a, _ := newBoundAdapter(t, "0xA11CE")
	a.Ingest(raw("other-puzzle", 4, alice, true, 1002))
	a.Ingest(raw("older", 3, alice, false, 1001))
	a.Ingest(raw("newer", 3, "0x000a11ce", true, 1005))

	ev, ok := a.FindMatch(submission.PendingSubmission{PuzzleID: 3, SubmittedAt: 1000})
	require.True(t, ok)
	assert.Equal(t, "newer", ev.ID)

	a.Claim("newer")
	ev, ok = a.FindMatch(submission.PendingSubmission{PuzzleID: 3, SubmittedAt: 1000})
	require.True(t, ok)
	assert.Equal(t, "older", ev.ID)

	a.Claim("older")
	_, ok = a.FindMatch(submission.PendingSubmission{PuzzleID: 3, SubmittedAt: 1000})
	assert.False(t, ok)
}

func TestSetPlayerSwitchResetsLog(t *testing.T) {
	a, src := newBoundAdapter(t, alice)
	oldGen := a.gen
	a.Ingest(raw("e1", 1, alice, true, 100))

	require.NoError(t, a.SetPlayer(context.Background(), bob))
	assert.Empty(t, a.Events())
	assert.Error(t, src.ctx(alice).Err(), "old subscription cancelled")
	assert.NoError(t, src.ctx(bob).Err())

	assert.False(t, a.ingest(oldGen, raw("late", 1, bob, true, 100)), "stale generation")
	assert.True(t, a.Ingest(raw("e2", 1, bob, true, 100)))

	// same identity again keeps the log
	require.NoError(t, a.SetPlayer(context.Background(), "0x0b0b"))
	assert.Len(t, a.Events(), 1)

	assert.ErrorIs(t, a.SetPlayer(context.Background(), "nope"), ErrInvalidPlayer)
}

func TestSubscriptionFeedsObservers(t *testing.T) {
	a, src := newBoundAdapter(t, alice)

	got := make(chan GuessEvent, 1)
	a.OnChange(func(ev GuessEvent) { got <- ev })

	src.push(alice, raw("live", 2, alice, true, 50))
	select {
	case ev := <-got:
		assert.Equal(t, "live", ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("observer not called")
	}
	assert.Len(t, a.Events(), 1)
}

type downSource struct{ err error }

func (d downSource) Subscribe(ctx context.Context, player string) (<-chan chain.RawGuessEvent, error) {
	return nil, d.err
}

func TestLive(t *testing.T) {
	a := NewAdapter(nil, nil, discardLogger())
	assert.True(t, a.Live(), "a source-less adapter is fed by hand")

	down := NewAdapter(downSource{err: errors.New("dial refused")}, nil, discardLogger())
	require.Error(t, down.SetPlayer(context.Background(), "0xa11ce"))
	assert.False(t, down.Live())

	up := NewAdapter(newFakeSource(), nil, discardLogger())
	require.NoError(t, up.SetPlayer(context.Background(), "0xa11ce"))
	assert.True(t, up.Live())
	up.Close()
	assert.False(t, up.Live())
}
