package world

import (
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/world/logic/pathfind"
	"gridtraffic.ai/internal/sim/world/logic/stall"
)

// buildObs renders one agent's view. all is the agent list in ID order.
func (w *World) buildObs(a *Agent, all []*Agent, nowTick uint64) protocol.ObsMsg {
	obs := protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            nowTick,
		AgentID:         a.ID,
		Self: protocol.SelfObs{
			Pos:      vecArray(a.Pos),
			LastMove: a.LastMove,
		},
		Agents: []protocol.AgentObs{},
		Events: a.TakeEvents(),
	}
	if obs.Events == nil {
		obs.Events = []protocol.Event{}
	}

	if mt := a.MoveTask; mt != nil {
		left := len(mt.Path) - mt.Cursor
		if left < 0 {
			left = 0
		}
		obs.Task = &protocol.TaskObs{
			TaskID:   mt.TaskID,
			Kind:     string(mt.Kind),
			Target:   vecArray(mt.Target),
			PathLeft: left,
			Stalled:  w.isStalled(a, nowTick),
		}
	}

	for _, other := range all {
		if other.ID == a.ID {
			continue
		}
		if pathfind.Chebyshev(toPos(a.Pos), toPos(other.Pos)) > w.cfg.ObsRadius {
			continue
		}
		obs.Agents = append(obs.Agents, protocol.AgentObs{ID: other.ID, Pos: vecArray(other.Pos)})
	}
	return obs
}

// isStalled reports whether the agent's traffic record says it has not
// moved for longer than the stuck limit.
func (w *World) isStalled(a *Agent, nowTick uint64) bool {
	rec, ok := w.traffic.Tracker().Get(a.ID)
	if !ok || rec.X != a.Pos.X || rec.Y != a.Pos.Y {
		return false
	}
	return stall.Stalled(nowTick, rec.Tick, w.traffic.Config().StuckLimit)
}
