// Package submission tracks guesses that were sent to the chain and are
// waiting for their confirming event.
package submission

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/quadclue/internal/clock"
)

const DefaultTimeout = 10 * time.Second

var ErrAlreadyPending = errors.New("submission: puzzle already has a pending submission")

type PendingSubmission struct {
	ID          string `json:"id"`
	PuzzleID    uint64 `json:"puzzleId"`
	Guess       string `json:"guess"`
	SubmittedAt int64  `json:"submittedAt"`
	Resolved    bool   `json:"resolved"`
}

type entry struct {
	sub   PendingSubmission
	timer clock.Timer
	token uint64
}

// Tracker holds at most one unresolved submission per puzzle. Each entry
// expires after the timeout unless resolved first; OnTimeout is called
// outside the tracker lock.
type Tracker struct {
	clock     clock.Clock
	timeout   time.Duration
	onTimeout func(PendingSubmission)

	mu      sync.Mutex
	seq     uint64
	order   []string
	entries map[string]*entry
}

func NewTracker(c clock.Clock, timeout time.Duration, onTimeout func(PendingSubmission)) *Tracker {
	if c == nil {
		c = clock.System()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		clock:     c,
		timeout:   timeout,
		onTimeout: onTimeout,
		entries:   map[string]*entry{},
	}
}

func (t *Tracker) Register(puzzleID uint64, guess string) (PendingSubmission, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.forPuzzleLocked(puzzleID); ok {
		return PendingSubmission{}, ErrAlreadyPending
	}

	t.seq++
	e := &entry{
		sub: PendingSubmission{
			ID:          uuid.NewString(),
			PuzzleID:    puzzleID,
			Guess:       strings.ToUpper(strings.TrimSpace(guess)),
			SubmittedAt: t.clock.Now().Unix(),
		},
		token: t.seq,
	}
	id, token := e.sub.ID, e.token
	e.timer = t.clock.AfterFunc(t.timeout, func() { t.expire(id, token) })

	t.entries[id] = e
	t.order = append(t.order, id)
	return e.sub, nil
}

// Resolve stops the timer and forgets the submission. Unknown ids are a
// no-op.
func (t *Tracker) Resolve(id string) (PendingSubmission, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return PendingSubmission{}, false
	}
	e.timer.Stop()
	t.removeLocked(id)
	e.sub.Resolved = true
	return e.sub, true
}

// Clear drops every pending submission without notifying.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		e.timer.Stop()
	}
	t.entries = map[string]*entry{}
	t.order = nil
}

func (t *Tracker) expire(id string, token uint64) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok || e.token != token {
		t.mu.Unlock()
		return
	}
	t.removeLocked(id)
	sub := e.sub
	t.mu.Unlock()

	if t.onTimeout != nil {
		t.onTimeout(sub)
	}
}

func (t *Tracker) removeLocked(id string) {
	delete(t.entries, id)
	for i, o := range t.order {
		if o == id {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *Tracker) IsSubmitting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries) > 0
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Pending lists unresolved submissions in the order they were registered.
func (t *Tracker) Pending() []PendingSubmission {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PendingSubmission, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id].sub)
	}
	return out
}

func (t *Tracker) Lookup(id string) (PendingSubmission, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return PendingSubmission{}, false
	}
	return e.sub, true
}

func (t *Tracker) ForPuzzle(puzzleID uint64) (PendingSubmission, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.forPuzzleLocked(puzzleID)
}

func (t *Tracker) forPuzzleLocked(puzzleID uint64) (PendingSubmission, bool) {
	for _, id := range t.order {
		if e := t.entries[id]; e.sub.PuzzleID == puzzleID {
			return e.sub, true
		}
	}
	return PendingSubmission{}, false
}
