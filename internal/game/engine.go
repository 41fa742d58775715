package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"example.com/quadclue/internal/chain"
	"example.com/quadclue/internal/clock"
	"example.com/quadclue/internal/events"
	"example.com/quadclue/internal/puzzle"
	"example.com/quadclue/internal/submission"
)

var (
	ErrNoPuzzle       = errors.New("no puzzle loaded")
	ErrAlreadySolved  = errors.New("puzzle already solved")
	ErrInvalidGuess   = errors.New("invalid guess")
	ErrAlreadyPending = submission.ErrAlreadyPending
	ErrNoHints        = errors.New("no more hints available")
	ErrTransport      = errors.New("submission transport failed")

	errNoGateway = errors.New("no chain gateway configured")
)

// EventLog is the part of the event adapter the engine reads.
type EventLog interface {
	FindMatch(sub submission.PendingSubmission) (events.GuessEvent, bool)
	Claim(id string)
}

type Callbacks struct {
	OnCorrect   func(GuessResult)
	OnIncorrect func(GuessResult)
	OnNotice    func(Notice)
}

type EngineConfig struct {
	Player            string
	Gateway           chain.Gateway
	Events            EventLog
	Persist           StatePersistence
	Clock             clock.Clock
	SubmissionTimeout time.Duration
	// Intn picks hint letters; defaults to math/rand/v2.
	Intn      func(n int) int
	Log       *slog.Logger
	Callbacks Callbacks
}

type SubmitResult struct {
	Success bool `json:"success"`
	// IsCorrect is always false: correctness arrives later with the
	// chain event.
	IsCorrect bool `json:"isCorrect"`
}

// Engine owns one player's progression. Every handler (user command, timer
// fire, event arrival) runs under mu; callbacks and observers run after it
// is released.
type Engine struct {
	player  string
	gateway chain.Gateway
	events  EventLog
	persist StatePersistence
	intn    func(n int) int
	log     *slog.Logger
	cb      Callbacks
	tracker *submission.Tracker

	mu        sync.Mutex
	phase     *fsm.FSM
	state     ProgressionState
	puzzles   []puzzle.View
	hintsAt   map[string]int
	observers map[int]func(Snapshot)
	nextObs   int
}

type effects struct {
	notices []Notice
	results []GuessResult
	changed bool
}

func (fx *effects) notice(kind NoticeKind, format string, args ...any) {
	fx.notices = append(fx.notices, Notice{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

func NewEngine(cfg EngineConfig) *Engine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	intn := cfg.Intn
	if intn == nil {
		intn = rand.IntN
	}
	e := &Engine{
		player:    cfg.Player,
		gateway:   cfg.Gateway,
		events:    cfg.Events,
		persist:   cfg.Persist,
		intn:      intn,
		log:       log.With("player", cfg.Player),
		cb:        cfg.Callbacks,
		state:     InitialState(),
		hintsAt:   map[string]int{},
		observers: map[int]func(Snapshot){},
	}
	e.phase = newPhaseMachine(e.log)
	e.tracker = submission.NewTracker(cfg.Clock, cfg.SubmissionTimeout, e.onTimeout)
	return e
}

// Restore loads the persisted state, if any. Unreadable or missing state
// leaves the engine at its initial state.
func (e *Engine) Restore(ctx context.Context) bool {
	if e.persist == nil {
		return false
	}
	st, found, err := e.persist.Load(ctx, e.player)
	if err != nil {
		e.log.Warn("load game state", "err", err)
		return false
	}
	if !found {
		return false
	}

	var fx effects
	e.mu.Lock()
	e.state = st.clone()
	e.refreshCompletionLocked(&fx)
	e.syncPhaseLocked()
	e.mu.Unlock()

	fx.changed = true
	e.flush(fx)
	return true
}

// SetPuzzles installs a new puzzle list. The list replaces the previous one
// wholesale.
func (e *Engine) SetPuzzles(ctx context.Context, views []puzzle.View) {
	var fx effects
	e.mu.Lock()
	e.puzzles = append([]puzzle.View(nil), views...)
	wasComplete := e.state.GameComplete
	e.refreshCompletionLocked(&fx)
	e.syncPhaseLocked()
	if wasComplete != e.state.GameComplete {
		e.persistLocked(ctx)
	}
	e.mu.Unlock()

	fx.changed = true
	e.flush(fx)
}

func (e *Engine) SubmitAnswer(ctx context.Context, guess string) (SubmitResult, error) {
	guess = normalizeGuess(guess)

	var fx effects
	e.mu.Lock()
	p, ok := e.currentPuzzleLocked()
	var verr error
	switch {
	case !ok:
		verr = ErrNoPuzzle
		fx.notice(NoticeError, "No puzzle is loaded.")
	case e.state.IsCompleted(p.ID):
		verr = ErrAlreadySolved
		fx.notice(NoticeError, "You already solved this puzzle.")
	case !validShape(guess, p.WordLength):
		verr = fmt.Errorf("%w: want %d letters A-Z", ErrInvalidGuess, p.WordLength)
		fx.notice(NoticeError, "Your guess must be %d letters.", p.WordLength)
	}
	if verr == nil {
		if _, pending := e.tracker.ForPuzzle(p.ID); pending {
			verr = ErrAlreadyPending
			fx.notice(NoticeError, "A guess for this puzzle is still waiting for confirmation.")
		}
	}
	if verr != nil {
		e.mu.Unlock()
		e.flush(fx)
		return SubmitResult{}, verr
	}

	e.state.TotalAttempts++
	sub, err := e.tracker.Register(p.ID, guess)
	if err != nil {
		e.persistLocked(ctx)
		e.mu.Unlock()
		fx.changed = true
		fx.notice(NoticeError, "A guess for this puzzle is still waiting for confirmation.")
		e.flush(fx)
		return SubmitResult{}, err
	}
	e.hintsAt[sub.ID] = e.state.HintsUsed
	e.syncPhaseLocked()
	e.persistLocked(ctx)
	e.mu.Unlock()

	e.log.Info("guess submitted", "puzzle", p.ID, "submission", sub.ID)
	e.flush(effects{changed: true})

	if err := e.send(ctx, p.ID, guess); err != nil {
		e.log.Warn("submit guess", "puzzle", p.ID, "submission", sub.ID, "err", err)

		var fx effects
		e.mu.Lock()
		if _, ok := e.tracker.Resolve(sub.ID); ok {
			delete(e.hintsAt, sub.ID)
			e.syncPhaseLocked()
			fx.changed = true
		}
		e.mu.Unlock()
		fx.notice(NoticeError, "Failed to submit your answer. Please try again.")
		e.flush(fx)
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	e.flush(effects{notices: []Notice{{Kind: NoticeInfo, Message: "Guess submitted, waiting for confirmation..."}}})
	return SubmitResult{Success: true}, nil
}

func (e *Engine) send(ctx context.Context, puzzleID uint64, guess string) error {
	if e.gateway == nil {
		return errNoGateway
	}
	_, err := e.gateway.SubmitGuess(ctx, puzzleID, guess)
	return err
}

// HandleEvents settles every pending submission that has a matching event,
// oldest submission first.
func (e *Engine) HandleEvents(ctx context.Context) {
	var fx effects
	e.mu.Lock()
	for _, sub := range e.tracker.Pending() {
		ev, ok := e.events.FindMatch(sub)
		if !ok {
			continue
		}
		if _, ok := e.tracker.Resolve(sub.ID); !ok {
			continue
		}
		e.events.Claim(ev.ID)
		hints := e.hintsAt[sub.ID]
		delete(e.hintsAt, sub.ID)

		res := GuessResult{
			SubmissionID: sub.ID,
			EventID:      ev.ID,
			PuzzleID:     sub.PuzzleID,
			Guess:        sub.Guess,
			Correct:      ev.IsCorrect,
		}
		if ev.IsCorrect {
			difficulty := ""
			if p, ok := e.puzzleByIDLocked(sub.PuzzleID); ok {
				difficulty = p.Difficulty
			}
			res.Points = ComputeScore(difficulty, 0, hints)
			res.Coins = CoinsFor(res.Points)

			e.state.Score += res.Points
			e.state.Coins += res.Coins
			e.state.CompletedPuzzles[sub.PuzzleID] = struct{}{}
			e.state.HintsUsed = 0
			fx.notice(NoticeSuccess, "Correct! +%d points, +%d coins", res.Points, res.Coins)
		} else {
			fx.notice(NoticeError, "%q is not the answer. Try again!", sub.Guess)
		}
		e.log.Info("guess settled", "puzzle", sub.PuzzleID, "submission", sub.ID, "event", ev.ID, "correct", ev.IsCorrect)
		fx.results = append(fx.results, res)
		fx.changed = true
	}
	if fx.changed {
		e.refreshCompletionLocked(&fx)
		e.syncPhaseLocked()
		e.persistLocked(ctx)
	}
	e.mu.Unlock()
	e.flush(fx)
}

func (e *Engine) onTimeout(sub submission.PendingSubmission) {
	e.mu.Lock()
	delete(e.hintsAt, sub.ID)
	e.syncPhaseLocked()
	e.mu.Unlock()

	e.log.Info("submission timed out", "puzzle", sub.PuzzleID, "submission", sub.ID)
	fx := effects{changed: true}
	fx.notice(NoticeTimeout, "No confirmation for %q yet. Please try again.", sub.Guess)
	e.flush(fx)
}

// NextPuzzle moves to the next puzzle not yet solved, wrapping around the
// list. It reports whether the index moved; when every puzzle is solved the
// game is marked complete instead.
func (e *Engine) NextPuzzle(ctx context.Context) bool {
	var fx effects
	e.mu.Lock()
	n := len(e.puzzles)
	if n == 0 {
		e.mu.Unlock()
		fx.notice(NoticeError, "No puzzle is loaded.")
		e.flush(fx)
		return false
	}

	advanced := false
	for i := 1; i <= n; i++ {
		idx := (e.state.CurrentPuzzleIndex + i) % n
		if e.state.IsCompleted(e.puzzles[idx].ID) {
			continue
		}
		e.state.CurrentPuzzleIndex = idx
		e.state.Level++
		e.state.HintsUsed = 0
		advanced = true
		break
	}
	if !advanced {
		e.markCompleteLocked(&fx)
	}
	e.syncPhaseLocked()
	e.persistLocked(ctx)
	e.mu.Unlock()

	fx.changed = true
	e.flush(fx)
	return advanced
}

// UseHint reveals one random available letter of the current puzzle.
func (e *Engine) UseHint(ctx context.Context) (string, error) {
	var fx effects
	e.mu.Lock()
	if e.state.HintsUsed >= MaxHints {
		e.mu.Unlock()
		fx.notice(NoticeError, "No more hints available!")
		e.flush(fx)
		return "", ErrNoHints
	}
	p, ok := e.currentPuzzleLocked()
	if !ok || len(p.AvailableLetters) == 0 {
		e.mu.Unlock()
		fx.notice(NoticeError, "No puzzle is loaded.")
		e.flush(fx)
		return "", ErrNoPuzzle
	}

	letter := p.AvailableLetters[e.intn(len(p.AvailableLetters))]
	e.state.HintsUsed++
	e.state.Coins = max(0, e.state.Coins-HintCost)
	e.persistLocked(ctx)
	e.mu.Unlock()

	fx.changed = true
	fx.notice(NoticeSuccess, "Hint: use the letter %q", letter)
	e.flush(fx)
	return letter, nil
}

// ResetGame starts over and deletes the saved state. Submissions still in
// flight are dropped and will not be credited.
func (e *Engine) ResetGame(ctx context.Context) {
	e.mu.Lock()
	e.tracker.Clear()
	e.hintsAt = map[string]int{}
	e.state = InitialState()
	e.syncPhaseLocked()
	if e.persist != nil {
		if err := e.persist.Clear(ctx, e.player); err != nil {
			e.log.Warn("clear game state", "err", err)
		}
	}
	e.mu.Unlock()

	fx := effects{changed: true}
	fx.notice(NoticeInfo, "Game reset.")
	e.flush(fx)
}

// ComputeScore scores a solve of the current puzzle.
func (e *Engine) ComputeScore(timeUsed, hintsUsed int) int {
	e.mu.Lock()
	p, _ := e.currentPuzzleLocked()
	e.mu.Unlock()
	return ComputeScore(p.Difficulty, timeUsed, hintsUsed)
}

func (e *Engine) CurrentPuzzle() (puzzle.View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentPuzzleLocked()
}

func (e *Engine) AvailableLetters() []string {
	p, ok := e.CurrentPuzzle()
	if !ok {
		return nil
	}
	return append([]string(nil), p.AvailableLetters...)
}

// IsAnswerCorrect is a local plausibility check: the guess has the right
// length and can be spelled from the available letters. The chain decides
// whether it is the answer.
func (e *Engine) IsAnswerCorrect(guess string) bool {
	p, ok := e.CurrentPuzzle()
	if !ok {
		return false
	}
	guess = normalizeGuess(guess)
	if !validShape(guess, p.WordLength) {
		return false
	}
	left := map[string]int{}
	for _, l := range p.AvailableLetters {
		left[l]++
	}
	for _, r := range guess {
		l := string(r)
		if left[l] == 0 {
			return false
		}
		left[l]--
	}
	return true
}

func (e *Engine) State() ProgressionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Phase(e.phase.Current())
}

func (e *Engine) Pending() []submission.PendingSubmission {
	return e.tracker.Pending()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		Player:             e.player,
		Phase:              Phase(e.phase.Current()),
		CurrentPuzzleIndex: e.state.CurrentPuzzleIndex,
		TotalPuzzles:       len(e.puzzles),
		Score:              e.state.Score,
		Coins:              e.state.Coins,
		Level:              e.state.Level,
		HintsUsed:          e.state.HintsUsed,
		TotalAttempts:      e.state.TotalAttempts,
		CompletedPuzzles:   e.state.CompletedIDs(),
		GameComplete:       e.state.GameComplete,
		Pending:            e.tracker.Pending(),
	}
	s.IsSubmitting = len(s.Pending) > 0
	if p, ok := e.currentPuzzleLocked(); ok {
		s.CurrentPuzzle = &p
	}
	return s
}

// Subscribe registers fn to receive a snapshot after every state change.
func (e *Engine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.observers, id)
		e.mu.Unlock()
	}
}

// Close drops pending submissions and observers.
func (e *Engine) Close() {
	e.tracker.Clear()
	e.mu.Lock()
	e.observers = map[int]func(Snapshot){}
	e.mu.Unlock()
}

func (e *Engine) flush(fx effects) {
	for _, r := range fx.results {
		switch {
		case r.Correct && e.cb.OnCorrect != nil:
			e.cb.OnCorrect(r)
		case !r.Correct && e.cb.OnIncorrect != nil:
			e.cb.OnIncorrect(r)
		}
	}
	if e.cb.OnNotice != nil {
		for _, n := range fx.notices {
			e.cb.OnNotice(n)
		}
	}
	if !fx.changed {
		return
	}

	e.mu.Lock()
	snap := e.snapshotLocked()
	observers := make([]func(Snapshot), 0, len(e.observers))
	for _, fn := range e.observers {
		observers = append(observers, fn)
	}
	e.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (e *Engine) currentPuzzleLocked() (puzzle.View, bool) {
	i := e.state.CurrentPuzzleIndex
	if i < 0 || i >= len(e.puzzles) {
		return puzzle.View{}, false
	}
	return e.puzzles[i], true
}

func (e *Engine) puzzleByIDLocked(id uint64) (puzzle.View, bool) {
	for _, p := range e.puzzles {
		if p.ID == id {
			return p, true
		}
	}
	return puzzle.View{}, false
}

// refreshCompletionLocked recomputes GameComplete. With no puzzle list yet
// the stored flag is kept.
func (e *Engine) refreshCompletionLocked(fx *effects) {
	if len(e.puzzles) == 0 {
		return
	}
	solved := 0
	for _, p := range e.puzzles {
		if e.state.IsCompleted(p.ID) {
			solved++
		}
	}
	if solved == len(e.puzzles) {
		e.markCompleteLocked(fx)
		return
	}
	e.state.GameComplete = false
}

func (e *Engine) markCompleteLocked(fx *effects) {
	if e.state.GameComplete {
		return
	}
	e.state.GameComplete = true
	fx.notice(NoticeSuccess, "Congratulations! You solved every puzzle.")
}

func (e *Engine) persistLocked(ctx context.Context) {
	if e.persist == nil {
		return
	}
	if err := e.persist.Save(ctx, e.player, e.state.clone()); err != nil {
		e.log.Warn("save game state", "err", err)
	}
}

func normalizeGuess(g string) string {
	return strings.ToUpper(strings.TrimSpace(g))
}

func validShape(guess string, wordLength int) bool {
	if guess == "" || (wordLength > 0 && len(guess) != wordLength) {
		return false
	}
	for i := 0; i < len(guess); i++ {
		if guess[i] < 'A' || guess[i] > 'Z' {
			return false
		}
	}
	return true
}
