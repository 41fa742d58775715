package game

import (
	"context"
	"sync"
)

// MemoryStatePersistence keeps encoded states in process. It goes through
// the same encoding as Redis so both behave alike.
type MemoryStatePersistence struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemoryStatePersistence() *MemoryStatePersistence {
	return &MemoryStatePersistence{
		m: make(map[string][]byte),
	}
}

func (s *MemoryStatePersistence) Save(ctx context.Context, player string, st ProgressionState) error {
	b, err := encodeState(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[player] = b
	return nil
}

func (s *MemoryStatePersistence) Load(ctx context.Context, player string) (ProgressionState, bool, error) {
	s.mu.Lock()
	b, ok := s.m[player]
	s.mu.Unlock()
	if !ok {
		return ProgressionState{}, false, nil
	}
	st, err := decodeState(b)
	if err != nil {
		return ProgressionState{}, false, nil
	}
	return st, true, nil
}

func (s *MemoryStatePersistence) Clear(ctx context.Context, player string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, player)
	return nil
}

// Put stores raw bytes under a player, as a browser save or a corrupted
// record would look.
func (s *MemoryStatePersistence) Put(player string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[player] = raw
}
