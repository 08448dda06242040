package runtime

import (
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
	"gridtraffic.ai/internal/sim/world/logic/pathfind"
	"gridtraffic.ai/internal/sim/world/logic/stall"
)

type Outcome int

const (
	OutcomeNoAction Outcome = iota + 1
	OutcomeWait
	OutcomeSwapped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoAction:
		return "NO_ACTION"
	case OutcomeWait:
		return "WAIT"
	case OutcomeSwapped:
		return "SWAPPED"
	}
	return "UNKNOWN"
}

type Resolution struct {
	Outcome   Outcome
	BlockerID string
	// Cell is the next path cell the stalled agent wants to enter.
	Cell Pos
	// MoveCode is the result of the blocker's commanded move. It is
	// informational only and never returned to the commanding agent.
	MoveCode string
}

// Resolve inspects the cell a stalled agent wants to enter next and, when
// another agent stands there, either waits for it or commands it to swap.
// A blocker that is itself stalled but still inside its swap delay window
// is left alone so two blocked agents do not pre-empt each other.
func Resolve(env ResolveEnv, tr *traffic.Tracker, cfg traffic.Config, agentID string, pos Pos, nowTick uint64) Resolution {
	next, ok := env.NextStep(agentID)
	if !ok {
		return Resolution{Outcome: OutcomeNoAction}
	}
	blockerID, ok := env.OccupantAt(next)
	if !ok || blockerID == "" || blockerID == agentID {
		return Resolution{Outcome: OutcomeNoAction, Cell: next}
	}
	if rec, ok := tr.Get(blockerID); ok && stall.InGrace(nowTick, rec.Tick, cfg.StuckLimit, cfg.SwapDelay) {
		return Resolution{Outcome: OutcomeWait, BlockerID: blockerID, Cell: next}
	}

	bpos, ok := env.AgentPos(blockerID)
	if !ok {
		bpos = next
	}
	tr.Set(blockerID, traffic.Record{Tick: nowTick, X: bpos.X, Y: bpos.Y, SwapPending: true})
	code := env.MoveInDirection(blockerID, pathfind.DirectionBetween(bpos, pos))
	if code == "" {
		code = protocol.MoveOK
	}
	return Resolution{Outcome: OutcomeSwapped, BlockerID: blockerID, Cell: next, MoveCode: code}
}
