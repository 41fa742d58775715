package game

import (
	"encoding/json"
	"sync"

	"example.com/quadclue/internal/clock"
	"example.com/quadclue/internal/events"
)

// Session is a live player: the engine, its event log and the sockets
// currently watching it.
type Session struct {
	Player string
	Engine *Engine
	Events *events.Adapter

	mu    sync.Mutex
	conns map[*ClientConn]struct{}
	unsub func()

	// guarded by SessionService.mu
	idleTimer clock.Timer
	idleToken uint64
}

func newSession(player string) *Session {
	return &Session{
		Player: player,
		conns:  map[*ClientConn]struct{}{},
	}
}

func (s *Session) Attach(cc *ClientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[cc] = struct{}{}
}

// Detach must happen before cc is closed so broadcasts never hit a closed
// channel.
func (s *Session) Detach(cc *ClientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, cc)
}

func (s *Session) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Session) broadcast(env Envelope) {
	b, _ := json.Marshal(env)
	s.mu.Lock()
	defer s.mu.Unlock()
	for cc := range s.conns {
		cc.trySend(b)
	}
}

func (s *Session) callbacks() Callbacks {
	result := func(r GuessResult) {
		s.broadcast(Envelope{Type: MsgGuessResult, Payload: mustJSON(r)})
	}
	return Callbacks{
		OnCorrect:   result,
		OnIncorrect: result,
		OnNotice: func(n Notice) {
			s.broadcast(Envelope{Type: MsgNotice, Payload: mustJSON(n)})
		},
	}
}

func (s *Session) pushState(snap Snapshot) {
	s.broadcast(Envelope{Type: MsgState, Payload: mustJSON(snap)})
}

func (s *Session) close() {
	if s.unsub != nil {
		s.unsub()
	}
	if s.Events != nil {
		s.Events.Close()
	}
	if s.Engine != nil {
		s.Engine.Close()
	}
}
