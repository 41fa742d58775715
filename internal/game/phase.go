package game

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"
)

const (
	evLoad   = "load"
	evSubmit = "submit"
	evSettle = "settle"
	evFinish = "finish"
	evReopen = "reopen"
	evUnload = "unload"
)

func newPhaseMachine(log *slog.Logger) *fsm.FSM {
	idle, active, awaiting, complete := string(PhaseIdle), string(PhaseActive), string(PhaseAwaiting), string(PhaseComplete)
	return fsm.NewFSM(
		idle,
		fsm.Events{
			{Name: evLoad, Src: []string{idle}, Dst: active},
			{Name: evSubmit, Src: []string{active}, Dst: awaiting},
			{Name: evSettle, Src: []string{awaiting}, Dst: active},
			{Name: evFinish, Src: []string{active, awaiting}, Dst: complete},
			{Name: evReopen, Src: []string{complete}, Dst: active},
			{Name: evUnload, Src: []string{active, awaiting, complete}, Dst: idle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug("phase changed", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
}

// phaseRoutes maps a (from, to) pair to the event that performs it. Pairs
// not listed go through PhaseActive.
var phaseRoutes = map[[2]Phase]string{
	{PhaseIdle, PhaseActive}:       evLoad,
	{PhaseActive, PhaseAwaiting}:   evSubmit,
	{PhaseAwaiting, PhaseActive}:   evSettle,
	{PhaseActive, PhaseComplete}:   evFinish,
	{PhaseAwaiting, PhaseComplete}: evFinish,
	{PhaseComplete, PhaseActive}:   evReopen,
	{PhaseActive, PhaseIdle}:       evUnload,
	{PhaseAwaiting, PhaseIdle}:     evUnload,
	{PhaseComplete, PhaseIdle}:     evUnload,
}

// desiredPhaseLocked derives the phase from state; the machine only
// follows it.
func (e *Engine) desiredPhaseLocked() Phase {
	p, ok := e.currentPuzzleLocked()
	switch {
	case !ok:
		return PhaseIdle
	case e.state.GameComplete:
		return PhaseComplete
	}
	if _, pending := e.tracker.ForPuzzle(p.ID); pending {
		return PhaseAwaiting
	}
	return PhaseActive
}

func (e *Engine) syncPhaseLocked() {
	target := e.desiredPhaseLocked()
	for range 2 {
		cur := Phase(e.phase.Current())
		if cur == target {
			return
		}
		ev, ok := phaseRoutes[[2]Phase{cur, target}]
		if !ok {
			ev = phaseRoutes[[2]Phase{cur, PhaseActive}]
		}
		if !e.phase.Can(ev) {
			e.log.Warn("no phase transition", "player", e.player, "from", cur, "to", target)
			return
		}
		if err := e.phase.Event(context.Background(), ev); err != nil {
			e.log.Warn("phase transition failed", "player", e.player, "event", ev, "err", err)
			return
		}
	}
}
