// Package events keeps the per-player log of GuessSubmitted events and
// matches them against pending submissions.
package events

import (
	"strings"

	"example.com/quadclue/internal/chain"
	"example.com/quadclue/internal/codec"
)

type GuessEvent struct {
	ID          string `json:"id"`
	PuzzleID    uint64 `json:"puzzleId"`
	Player      string `json:"player"`
	IsCorrect   bool   `json:"isCorrect"`
	GuessLength int    `json:"guessLength"`
	Timestamp   int64  `json:"timestamp"`
}

// Decode validates a raw feed record. Records without an id, with an
// unparsable puzzle id, player or timestamp are rejected.
func Decode(raw chain.RawGuessEvent) (GuessEvent, bool) {
	id := strings.TrimSpace(raw.EntityID)
	if id == "" {
		return GuessEvent{}, false
	}
	puzzleID, ok := raw.PuzzleID.Uint64()
	if !ok {
		return GuessEvent{}, false
	}
	player := codec.NormalizeAddress(string(raw.Player))
	if player == "" {
		return GuessEvent{}, false
	}
	ts, ok := raw.Timestamp.Uint64()
	if !ok || ts > 1<<62 {
		return GuessEvent{}, false
	}
	length, _ := raw.GuessLength.Uint64()

	return GuessEvent{
		ID:          id,
		PuzzleID:    puzzleID,
		Player:      player,
		IsCorrect:   raw.IsCorrect,
		GuessLength: int(min(length, 1<<16)),
		Timestamp:   int64(ts),
	}, true
}
