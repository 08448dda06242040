package runtime

import (
	"gridtraffic.ai/internal/sim/world/feature/traffic"
	"gridtraffic.ai/internal/sim/world/logic/stall"
)

type Verdict int

const (
	VerdictProgressing Verdict = iota + 1
	VerdictWaiting
	VerdictStalled
	VerdictArrived
)

func (v Verdict) String() string {
	switch v {
	case VerdictProgressing:
		return "PROGRESSING"
	case VerdictWaiting:
		return "WAITING"
	case VerdictStalled:
		return "STALLED"
	case VerdictArrived:
		return "ARRIVED"
	}
	return "UNKNOWN"
}

// Detect classifies an agent's progress after a successful step and
// updates its tracker record. It only fires STALLED after the agent has
// stayed put for more than cfg.StuckLimit ticks, so one-tick incidental
// blocking is ignored.
func Detect(tr *traffic.Tracker, cfg traffic.Config, agentID string, pos, dest Pos, nowTick uint64) Verdict {
	if pos == dest {
		tr.Remove(agentID)
		return VerdictArrived
	}
	rec, ok := tr.Get(agentID)
	if !ok || rec.X != pos.X || rec.Y != pos.Y {
		tr.Set(agentID, traffic.Record{Tick: nowTick, X: pos.X, Y: pos.Y})
		return VerdictProgressing
	}
	if stall.Stalled(nowTick, rec.Tick, cfg.StuckLimit) {
		return VerdictStalled
	}
	return VerdictWaiting
}
