package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"example.com/quadclue/internal/chain"
	"example.com/quadclue/internal/clock"
	"example.com/quadclue/internal/codec"
	"example.com/quadclue/internal/events"
	"example.com/quadclue/internal/puzzle"
)

var ErrInvalidPlayer = errors.New("invalid player address")

type Config struct {
	SubmissionTimeout time.Duration
	MatchWindow       time.Duration
	PuzzleRefresh     time.Duration // 0 => no periodic refresh
	// IdleTimeout is how long a session without connections is kept;
	// 0 => closed as soon as the last connection leaves.
	IdleTimeout time.Duration
}

// GatewayFactory hands out a gateway that signs as the given account.
type GatewayFactory interface {
	Account(address string) chain.Gateway
}

type StatsInvalidator interface {
	Invalidate(address string)
}

type SessionDeps struct {
	Persist  StatePersistence
	Gateways GatewayFactory
	Feed     chain.EventSource
	Puzzles  puzzle.Source
	Stats    StatsInvalidator
	Clock    clock.Clock
	Log      *slog.Logger
}

// SessionService keeps one live Session per player and restores sessions
// from persistence on first use. Event subscriptions live on the service
// context, not on the request that created them.
type SessionService struct {
	ctx  context.Context
	cfg  Config
	deps SessionDeps
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	views    []puzzle.View
}

func NewSessionService(ctx context.Context, cfg Config, deps SessionDeps) *SessionService {
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &SessionService{
		ctx:      ctx,
		cfg:      cfg,
		deps:     deps,
		log:      deps.Log,
		sessions: make(map[string]*Session),
	}
}

func (s *SessionService) Get(address string) (*Session, bool) {
	addr := codec.NormalizeAddress(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[addr]
	return sess, ok
}

func (s *SessionService) GetOrCreate(ctx context.Context, address string) (*Session, error) {
	addr := codec.NormalizeAddress(address)
	if addr == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlayer, address)
	}

	s.mu.Lock()
	sess, ok := s.sessions[addr]
	views := s.views
	s.mu.Unlock()
	if ok {
		s.ensureFeed(sess)
		return sess, nil
	}

	sess = s.build(ctx, addr, views)

	s.mu.Lock()
	if existing, ok := s.sessions[addr]; ok {
		s.mu.Unlock()
		sess.close()
		return existing, nil
	}
	s.sessions[addr] = sess
	s.mu.Unlock()

	s.log.Info("session opened", "player", addr)
	return sess, nil
}

func (s *SessionService) build(ctx context.Context, addr string, views []puzzle.View) *Session {
	log := s.log.With("player", addr)
	sess := newSession(addr)
	sess.Events = events.NewAdapter(s.deps.Feed, events.WindowMatcher{Window: s.cfg.MatchWindow}, log)

	cb := sess.callbacks()
	if s.deps.Stats != nil {
		onCorrect := cb.OnCorrect
		cb.OnCorrect = func(r GuessResult) {
			s.deps.Stats.Invalidate(addr)
			onCorrect(r)
		}
	}

	var gw chain.Gateway
	if s.deps.Gateways != nil {
		gw = s.deps.Gateways.Account(addr)
	}
	sess.Engine = NewEngine(EngineConfig{
		Player:            addr,
		Gateway:           gw,
		Events:            sess.Events,
		Persist:           s.deps.Persist,
		Clock:             s.deps.Clock,
		SubmissionTimeout: s.cfg.SubmissionTimeout,
		Log:               s.log,
		Callbacks:         cb,
	})
	sess.Engine.Restore(ctx)
	sess.Engine.SetPuzzles(ctx, views)
	sess.unsub = sess.Engine.Subscribe(sess.pushState)

	engine := sess.Engine
	sess.Events.OnChange(func(events.GuessEvent) {
		engine.HandleEvents(s.ctx)
	})
	if err := sess.Events.SetPlayer(s.ctx, addr); err != nil {
		log.Warn("event feed unavailable, submissions will time out", "err", err)
	}
	return sess
}

// ensureFeed re-subscribes a session whose event subscription failed.
func (s *SessionService) ensureFeed(sess *Session) {
	if sess.Events.Live() {
		return
	}
	if err := sess.Events.SetPlayer(s.ctx, sess.Player); err != nil {
		s.log.Warn("event feed still unavailable", "player", sess.Player, "err", err)
		return
	}
	s.log.Info("event feed resubscribed", "player", sess.Player)
}

// Acquire returns the player's session with cc attached. A session that
// is being evicted is never handed out.
func (s *SessionService) Acquire(ctx context.Context, address string, cc *ClientConn) (*Session, error) {
	for {
		sess, err := s.GetOrCreate(ctx, address)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if s.sessions[sess.Player] == sess {
			sess.Attach(cc)
			s.stopIdleLocked(sess)
			s.mu.Unlock()
			return sess, nil
		}
		s.mu.Unlock()
	}
}

// Release detaches cc. Once no connection is left the session is closed,
// after IdleTimeout when one is configured.
func (s *SessionService) Release(sess *Session, cc *ClientConn) {
	s.mu.Lock()
	sess.Detach(cc)
	if sess.Conns() > 0 || s.sessions[sess.Player] != sess {
		s.mu.Unlock()
		return
	}
	if s.cfg.IdleTimeout <= 0 {
		delete(s.sessions, sess.Player)
		s.mu.Unlock()
		s.closeSession(sess, "idle")
		return
	}

	s.stopIdleLocked(sess)
	token := sess.idleToken
	sess.idleTimer = s.deps.Clock.AfterFunc(s.cfg.IdleTimeout, func() {
		s.evictIdle(sess, token)
	})
	s.mu.Unlock()
}

func (s *SessionService) evictIdle(sess *Session, token uint64) {
	s.mu.Lock()
	if sess.idleToken != token || s.sessions[sess.Player] != sess || sess.Conns() > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sess.Player)
	s.mu.Unlock()
	s.closeSession(sess, "idle")
}

func (s *SessionService) stopIdleLocked(sess *Session) {
	sess.idleToken++
	if sess.idleTimer != nil {
		sess.idleTimer.Stop()
		sess.idleTimer = nil
	}
}

func (s *SessionService) closeSession(sess *Session, reason string) {
	sess.close()
	s.log.Info("session closed", "player", sess.Player, "reason", reason)
}

// RefreshPuzzles reloads the puzzle list and pushes it into every live
// session.
func (s *SessionService) RefreshPuzzles(ctx context.Context) ([]puzzle.View, error) {
	if s.deps.Puzzles == nil {
		return nil, nil
	}
	raws, err := s.deps.Puzzles.Puzzles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load puzzles: %w", err)
	}
	views := puzzle.DecodeAll(raws)
	if len(views) < len(raws) {
		s.log.Warn("dropped undecodable puzzles", "raw", len(raws), "kept", len(views))
	}

	s.mu.Lock()
	s.views = views
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	for _, sess := range live {
		sess.Engine.SetPuzzles(ctx, views)
	}
	return views, nil
}

func (s *SessionService) Puzzles() []puzzle.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views
}

// Run refreshes puzzles periodically until ctx is done, then closes every
// session.
func (s *SessionService) Run(ctx context.Context) error {
	defer s.CloseAll()

	if _, err := s.RefreshPuzzles(ctx); err != nil {
		s.log.Warn("initial puzzle load failed", "err", err)
	}
	if s.cfg.PuzzleRefresh <= 0 {
		<-ctx.Done()
		return nil
	}

	t := time.NewTicker(s.cfg.PuzzleRefresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.RefreshPuzzles(ctx); err != nil {
				s.log.Warn("puzzle refresh failed", "err", err)
			}
		}
	}
}

func (s *SessionService) Close(address string) {
	addr := codec.NormalizeAddress(address)
	s.mu.Lock()
	sess, ok := s.sessions[addr]
	if ok {
		delete(s.sessions, addr)
		s.stopIdleLocked(sess)
	}
	s.mu.Unlock()
	if ok {
		s.closeSession(sess, "closed")
	}
}

func (s *SessionService) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	for _, sess := range all {
		s.stopIdleLocked(sess)
	}
	s.mu.Unlock()
	for _, sess := range all {
		sess.close()
	}
}
