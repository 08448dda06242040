package world

import (
	"gridtraffic.ai/internal/protocol"
	trafficruntime "gridtraffic.ai/internal/sim/world/feature/traffic/runtime"
	"gridtraffic.ai/internal/sim/world/logic/pathfind"
)

// trafficObserver turns interceptor decisions into metrics, tick log
// records and agent events.
type trafficObserver struct {
	w *World

	// Per-tick buffers, reset by beginTick.
	swaps    []RecordedSwap
	stalls   []string
	consumed map[string]bool

	totals TrafficTotals
}

func (o *trafficObserver) beginTick() {
	o.swaps = nil
	o.stalls = nil
	clear(o.consumed)
}

func (o *trafficObserver) consumedThisTick(agentID string) bool {
	return o.consumed[agentID]
}

func (o *trafficObserver) OnVerdict(agentID string, v trafficruntime.Verdict, nowTick uint64) {
	if o.w.sink != nil {
		o.w.sink.ObserveVerdict(v.String())
	}
	switch v {
	case trafficruntime.VerdictStalled:
		o.totals.Stalls++
		o.stalls = append(o.stalls, agentID)
		o.w.log.Debug().Str("agent_id", agentID).Uint64("tick", nowTick).Msg("agent stalled")
	case trafficruntime.VerdictArrived:
		o.totals.Arrivals++
	}
}

func (o *trafficObserver) OnResolution(agentID string, r trafficruntime.Resolution, nowTick uint64) {
	if o.w.sink != nil {
		o.w.sink.ObserveResolution(r.Outcome.String())
	}
	switch r.Outcome {
	case trafficruntime.OutcomeWait:
		o.totals.Waits++
		o.w.log.Debug().Str("agent_id", agentID).Str("blocker_id", r.BlockerID).Uint64("tick", nowTick).Msg("waiting for stalled blocker")
	case trafficruntime.OutcomeSwapped:
		o.totals.Swaps++
		if o.w.sink != nil {
			o.w.sink.ObserveSwapCommand(r.MoveCode)
		}
		dir := pathfind.DirNone
		if a := o.w.agents[agentID]; a != nil {
			dir = pathfind.DirectionBetween(r.Cell, toPos(a.Pos))
		}
		o.swaps = append(o.swaps, RecordedSwap{
			AgentID:   agentID,
			BlockerID: r.BlockerID,
			Cell:      [2]int{r.Cell.X, r.Cell.Y},
			Dir:       dir.String(),
			Code:      r.MoveCode,
		})
		ev := protocol.Event{
			"t":       nowTick,
			"type":    "SWAPPED",
			"by":      agentID,
			"blocker": r.BlockerID,
			"dir":     dir.String(),
			"code":    r.MoveCode,
		}
		if a := o.w.agents[agentID]; a != nil {
			a.AddEvent(ev)
		}
		if b := o.w.agents[r.BlockerID]; b != nil {
			b.AddEvent(ev)
		}
		o.w.log.Debug().
			Str("agent_id", agentID).
			Str("blocker_id", r.BlockerID).
			Str("dir", dir.String()).
			Str("code", r.MoveCode).
			Uint64("tick", nowTick).
			Msg("swap commanded")
	}
}

func (o *trafficObserver) OnSwapConsumed(agentID string, nowTick uint64) {
	o.totals.SwapsConsumed++
	if o.consumed == nil {
		o.consumed = map[string]bool{}
	}
	o.consumed[agentID] = true
	if o.w.sink != nil {
		o.w.sink.ObserveSwapConsumed()
	}
	o.w.log.Debug().Str("agent_id", agentID).Uint64("tick", nowTick).Msg("turn yielded to swap")
}
