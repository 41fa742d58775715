package game

import (
	"encoding/json"
	"errors"
)

var errMalformedState = errors.New("malformed game state")

// persistedState is the stored layout of a ProgressionState. Field names
// are shared with browser saves so old saves stay loadable.
type persistedState struct {
	CurrentPuzzleIndex int      `json:"currentPuzzleIndex"`
	Score              int      `json:"score"`
	Coins              int      `json:"coins"`
	Level              int      `json:"level"`
	HintsUsed          int      `json:"hintsUsed"`
	TotalAttempts      int      `json:"totalAttempts"`
	CompletedPuzzles   []uint64 `json:"completedPuzzles"`
	GameComplete       bool     `json:"gameComplete"`
}

func encodeState(s ProgressionState) ([]byte, error) {
	return json.Marshal(persistedState{
		CurrentPuzzleIndex: s.CurrentPuzzleIndex,
		Score:              s.Score,
		Coins:              s.Coins,
		Level:              s.Level,
		HintsUsed:          s.HintsUsed,
		TotalAttempts:      s.TotalAttempts,
		CompletedPuzzles:   s.CompletedIDs(),
		GameComplete:       s.GameComplete,
	})
}

func decodeState(b []byte) (ProgressionState, error) {
	var pp *persistedState
	if err := json.Unmarshal(b, &pp); err != nil {
		return ProgressionState{}, errors.Join(errMalformedState, err)
	}
	if pp == nil {
		return ProgressionState{}, errMalformedState
	}
	p := *pp
	if p.CurrentPuzzleIndex < 0 || p.Score < 0 || p.Coins < 0 || p.Level < 0 ||
		p.HintsUsed < 0 || p.HintsUsed > MaxHints || p.TotalAttempts < 0 {
		return ProgressionState{}, errMalformedState
	}

	s := InitialState()
	s.CurrentPuzzleIndex = p.CurrentPuzzleIndex
	s.Score = p.Score
	s.Coins = p.Coins
	s.Level = max(p.Level, 1)
	s.HintsUsed = p.HintsUsed
	s.TotalAttempts = p.TotalAttempts
	s.GameComplete = p.GameComplete
	for _, id := range p.CompletedPuzzles {
		s.CompletedPuzzles[id] = struct{}{}
	}
	return s, nil
}
