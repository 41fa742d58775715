package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"example.com/quadclue/internal/chain"
	"example.com/quadclue/internal/codec"
	"example.com/quadclue/internal/submission"
)

var ErrInvalidPlayer = errors.New("events: invalid player address")

// Adapter is the event log of a single player. The log is kept newest
// first and replaced wholesale on every change, so a slice returned by
// Events is never written to again.
type Adapter struct {
	source  chain.EventSource
	matcher Matcher
	log     *slog.Logger

	mu        sync.Mutex
	player    string
	gen       uint64
	cancel    context.CancelFunc
	entries   []GuessEvent
	seen      map[string]struct{}
	claimed   map[string]struct{}
	observers []func(GuessEvent)
}

func NewAdapter(source chain.EventSource, matcher Matcher, log *slog.Logger) *Adapter {
	if matcher == nil {
		matcher = WindowMatcher{Window: DefaultMatchWindow}
	}
	return &Adapter{
		source:  source,
		matcher: matcher,
		log:     log,
		seen:    map[string]struct{}{},
		claimed: map[string]struct{}{},
	}
}

// SetPlayer binds the log to an account. Switching to another account
// cancels the old subscription and drops its events; setting the same
// account again is a no-op.
func (a *Adapter) SetPlayer(ctx context.Context, address string) error {
	addr := codec.NormalizeAddress(address)
	if addr == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPlayer, address)
	}

	a.mu.Lock()
	if addr == a.player && a.cancel != nil {
		a.mu.Unlock()
		return nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.player = addr
	a.gen++
	gen := a.gen
	a.entries = nil
	a.seen = map[string]struct{}{}
	a.claimed = map[string]struct{}{}
	if a.source == nil {
		a.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	ch, err := a.source.Subscribe(subCtx, addr)
	if err != nil {
		cancel()
		a.mu.Lock()
		if a.gen == gen {
			a.cancel = nil
		}
		a.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", addr, err)
	}
	go a.consume(gen, ch)
	return nil
}

func (a *Adapter) consume(gen uint64, ch <-chan chain.RawGuessEvent) {
	for raw := range ch {
		a.ingest(gen, raw)
	}
	a.log.Debug("event subscription ended", "generation", gen)
}

// Close cancels the live subscription.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// Live reports whether events can arrive: a subscription is running, or
// the adapter has no source and is fed through Ingest.
func (a *Adapter) Live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.source == nil || a.cancel != nil
}

func (a *Adapter) Player() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.player
}

// Ingest adds a record to the current log. It reports whether the record
// was new and accepted.
func (a *Adapter) Ingest(raw chain.RawGuessEvent) bool {
	a.mu.Lock()
	gen := a.gen
	a.mu.Unlock()
	return a.ingest(gen, raw)
}

func (a *Adapter) ingest(gen uint64, raw chain.RawGuessEvent) bool {
	ev, ok := Decode(raw)
	if !ok {
		a.log.Debug("dropping malformed guess event", "entity", raw.EntityID)
		return false
	}

	a.mu.Lock()
	if gen != a.gen || ev.Player != a.player {
		a.mu.Unlock()
		return false
	}
	if _, dup := a.seen[ev.ID]; dup {
		a.mu.Unlock()
		return false
	}
	a.seen[ev.ID] = struct{}{}

	next := make([]GuessEvent, 0, len(a.entries)+1)
	next = append(next, ev)
	next = append(next, a.entries...)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Timestamp > next[j].Timestamp })
	a.entries = next
	observers := a.observers
	a.mu.Unlock()

	for _, fn := range observers {
		fn(ev)
	}
	return true
}

// OnChange registers fn to be called with every newly ingested event.
func (a *Adapter) OnChange(fn func(GuessEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	obs := make([]func(GuessEvent), 0, len(a.observers)+1)
	obs = append(obs, a.observers...)
	a.observers = append(obs, fn)
}

func (a *Adapter) Events() []GuessEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries
}

func (a *Adapter) Latest() (GuessEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		return GuessEvent{}, false
	}
	return a.entries[0], true
}

func (a *Adapter) ForPuzzle(puzzleID uint64) []GuessEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []GuessEvent
	for _, ev := range a.entries {
		if ev.PuzzleID == puzzleID {
			out = append(out, ev)
		}
	}
	return out
}

// FindMatch returns the newest unclaimed event that confirms sub.
func (a *Adapter) FindMatch(sub submission.PendingSubmission) (GuessEvent, bool) {
	a.mu.Lock()
	player := a.player
	candidates := make([]GuessEvent, 0, len(a.entries))
	for _, ev := range a.entries {
		if _, used := a.claimed[ev.ID]; !used {
			candidates = append(candidates, ev)
		}
	}
	a.mu.Unlock()

	if player == "" {
		return GuessEvent{}, false
	}
	return a.matcher.Match(candidates, player, sub)
}

// Claim marks an event as consumed so it never confirms a second
// submission.
func (a *Adapter) Claim(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.claimed[id] = struct{}{}
}
