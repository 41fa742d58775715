// Package chain holds the raw record schemas published by the game contract
// and the clients that reach the relay and the event feed.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"example.com/quadclue/internal/codec"
)

// Felt is a field element as it appears on the wire: a JSON string (hex or
// decimal) or a bare JSON number.
type Felt string

func (f *Felt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Felt(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = Felt(n.String())
	return nil
}

func (f Felt) Uint64() (uint64, bool) { return codec.ParseUint(string(f)) }

func (f Felt) Text() string { return codec.Decode(string(f)) }

// RawPuzzle is a puzzle model record as indexed from the contract.
type RawPuzzle struct {
	ID               Felt   `json:"id"`
	ImageHashes      []Felt `json:"image_hashes"`
	AnswerHash       Felt   `json:"answer_hash"`
	WordLength       Felt   `json:"word_length"`
	AvailableLetters []Felt `json:"available_letters"`
	Active           bool   `json:"active"`
	Difficulty       Felt   `json:"difficulty"`
	CreationTime     Felt   `json:"creation_time"`
	SolveCount       Felt   `json:"solve_count"`
	FirstSolver      Felt   `json:"first_solver"`
}

// RawGuessEvent is one GuessSubmitted record from the event feed.
type RawGuessEvent struct {
	EntityID    string `json:"entity_id"`
	PuzzleID    Felt   `json:"puzzle_id"`
	Player      Felt   `json:"player"`
	IsCorrect   bool   `json:"is_correct"`
	GuessLength Felt   `json:"guess_length"`
	Timestamp   Felt   `json:"timestamp"`
}

type PlayerStats struct {
	PuzzlesSolved uint64 `json:"puzzlesSolved"`
	TotalAttempts uint64 `json:"totalAttempts"`
	TokensEarned  uint64 `json:"tokensEarned"`
	CurrentStreak uint64 `json:"currentStreak"`
	HintsUsed     uint64 `json:"hintsUsed"`
	Level         uint64 `json:"level"`
}

type rawPlayerStats struct {
	PuzzlesSolved Felt `json:"puzzles_solved"`
	TotalAttempts Felt `json:"total_attempts"`
	TokensEarned  Felt `json:"tokens_earned"`
	CurrentStreak Felt `json:"current_streak"`
	HintsUsed     Felt `json:"hints_used"`
	Level         Felt `json:"level"`
}

func (r rawPlayerStats) decode() PlayerStats {
	n := func(f Felt) uint64 {
		v, _ := f.Uint64()
		return v
	}
	return PlayerStats{
		PuzzlesSolved: n(r.PuzzlesSolved),
		TotalAttempts: n(r.TotalAttempts),
		TokensEarned:  n(r.TokensEarned),
		CurrentStreak: n(r.CurrentStreak),
		HintsUsed:     n(r.HintsUsed),
		Level:         n(r.Level),
	}
}

// TxHandle identifies a submitted transaction. Callers only use the error
// of SubmitGuess; the handle is informational.
type TxHandle struct {
	Hash string `json:"transaction_hash"`
}

var ErrRelay = errors.New("chain: relay request failed")

// Gateway is the per-account view of the contract.
type Gateway interface {
	SubmitGuess(ctx context.Context, puzzleID uint64, guess string) (TxHandle, error)
	PlayerStats(ctx context.Context, address string) (PlayerStats, bool, error)
}

type StatsFetcher interface {
	PlayerStats(ctx context.Context, address string) (PlayerStats, bool, error)
}

// EventSource delivers GuessSubmitted records for one player. The returned
// channel is closed once ctx is done.
type EventSource interface {
	Subscribe(ctx context.Context, player string) (<-chan RawGuessEvent, error)
}
