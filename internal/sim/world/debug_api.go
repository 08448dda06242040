package world

import "gridtraffic.ai/internal/sim/world/feature/traffic"

// ---- Debug/Test Helpers ----
//
// These helpers exist to allow black-box tests in sibling packages (e.g. internal/sim/worldtest)
// to set up deterministic preconditions without reaching into world internals.
//
// They are NOT safe to call concurrently with Run(). Prefer using them only in tests that drive
// the world via StepOnce(), from a single goroutine.

// DebugSetAgentPos teleports an agent. It fails for walls and occupied cells.
func (w *World) DebugSetAgentPos(agentID string, pos Vec2i) bool {
	if w == nil || agentID == "" {
		return false
	}
	a := w.agents[agentID]
	if a == nil || !w.walkable(pos) {
		return false
	}
	w.rebuildOccupancy()
	if occ, taken := w.occ[pos]; taken && occ != agentID {
		return false
	}
	a.Pos = pos
	if mt := a.MoveTask; mt != nil {
		mt.ClearPath()
	}
	w.rebuildOccupancy()
	return true
}

func (w *World) DebugAgentPos(agentID string) (Vec2i, bool) {
	if w == nil {
		return Vec2i{}, false
	}
	a := w.agents[agentID]
	if a == nil {
		return Vec2i{}, false
	}
	return a.Pos, true
}

func (w *World) DebugClearAgentEvents(agentID string) bool {
	if w == nil || agentID == "" {
		return false
	}
	a := w.agents[agentID]
	if a == nil {
		return false
	}
	a.Events = nil
	return true
}

func (w *World) DebugSetWall(pos Vec2i, solid bool) bool {
	if w == nil || !w.inBounds(pos) {
		return false
	}
	w.grid.SetSolid(pos.X, pos.Y, solid)
	return true
}

func (w *World) DebugTrackerRecord(agentID string) (traffic.Record, bool) {
	if w == nil {
		return traffic.Record{}, false
	}
	return w.traffic.Tracker().Get(agentID)
}
