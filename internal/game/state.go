package game

import (
	"maps"
	"slices"

	"example.com/quadclue/internal/puzzle"
	"example.com/quadclue/internal/submission"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseActive   Phase = "active"
	PhaseAwaiting Phase = "awaiting"
	PhaseComplete Phase = "complete"
)

// ProgressionState is the durable part of a player's game.
type ProgressionState struct {
	CurrentPuzzleIndex int
	Score              int
	Coins              int
	Level              int
	HintsUsed          int
	TotalAttempts      int
	CompletedPuzzles   map[uint64]struct{}
	GameComplete       bool
}

func InitialState() ProgressionState {
	return ProgressionState{
		Level:            1,
		CompletedPuzzles: map[uint64]struct{}{},
	}
}

func (s ProgressionState) clone() ProgressionState {
	c := s
	c.CompletedPuzzles = maps.Clone(s.CompletedPuzzles)
	if c.CompletedPuzzles == nil {
		c.CompletedPuzzles = map[uint64]struct{}{}
	}
	return c
}

func (s ProgressionState) IsCompleted(puzzleID uint64) bool {
	_, ok := s.CompletedPuzzles[puzzleID]
	return ok
}

// CompletedIDs returns the completed set in ascending order.
func (s ProgressionState) CompletedIDs() []uint64 {
	ids := slices.Collect(maps.Keys(s.CompletedPuzzles))
	slices.Sort(ids)
	if ids == nil {
		ids = []uint64{}
	}
	return ids
}

// Snapshot is an immutable view of an engine, pushed to observers and sent
// to the browser as the "state" message.
type Snapshot struct {
	Player             string                         `json:"player"`
	Phase              Phase                          `json:"phase"`
	CurrentPuzzleIndex int                            `json:"currentPuzzleIndex"`
	CurrentPuzzle      *puzzle.View                   `json:"currentPuzzle"`
	TotalPuzzles       int                            `json:"totalPuzzles"`
	Score              int                            `json:"score"`
	Coins              int                            `json:"coins"`
	Level              int                            `json:"level"`
	HintsUsed          int                            `json:"hintsUsed"`
	TotalAttempts      int                            `json:"totalAttempts"`
	CompletedPuzzles   []uint64                       `json:"completedPuzzles"`
	GameComplete       bool                           `json:"gameComplete"`
	IsSubmitting       bool                           `json:"isSubmitting"`
	Pending            []submission.PendingSubmission `json:"pending"`
}

type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
	NoticeTimeout NoticeKind = "timeout"
)

// Notice is a user-facing message about something the engine did or
// refused to do.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// GuessResult reports a submission settled by a matching chain event.
type GuessResult struct {
	SubmissionID string `json:"submissionId"`
	EventID      string `json:"eventId"`
	PuzzleID     uint64 `json:"puzzleId"`
	Guess        string `json:"guess"`
	Correct      bool   `json:"correct"`
	Points       int    `json:"points"`
	Coins        int    `json:"coins"`
}
