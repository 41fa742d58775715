package events

import (
	"time"

	"example.com/quadclue/internal/submission"
)

const DefaultMatchWindow = 10 * time.Second

// Matcher picks the event that confirms a pending submission. Events are
// given newest first.
type Matcher interface {
	Match(events []GuessEvent, player string, sub submission.PendingSubmission) (GuessEvent, bool)
}

// WindowMatcher correlates by player, puzzle id and time: the event must be
// stamped between the submission time and Window seconds after it,
// inclusive at both ends. Two guesses on one puzzle inside one window cannot
// be told apart; the tracker's one-pending-per-puzzle rule keeps that from
// mattering.
type WindowMatcher struct {
	Window time.Duration
}

func (m WindowMatcher) Match(events []GuessEvent, player string, sub submission.PendingSubmission) (GuessEvent, bool) {
	window := int64(m.Window / time.Second)
	if window <= 0 {
		window = int64(DefaultMatchWindow / time.Second)
	}
	for _, ev := range events {
		if ev.PuzzleID != sub.PuzzleID || ev.Player != player {
			continue
		}
		d := ev.Timestamp - sub.SubmittedAt
		if d >= 0 && d <= window {
			return ev, true
		}
	}
	return GuessEvent{}, false
}
