package world

import (
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/tasks"
	"gridtraffic.ai/internal/sim/world/logic/intents"
	"gridtraffic.ai/internal/sim/world/logic/pathfind"
)

// systemMovement runs every active move task through the traffic
// interceptor in agent ID order. Moves only register intents here;
// positions change in resolveIntents.
func (w *World) systemMovement(nowTick uint64) {
	clear(w.moveIntents)
	w.rebuildOccupancy()

	for _, a := range w.sortedAgents() {
		mt := a.MoveTask
		if mt == nil {
			continue
		}
		code := w.traffic.Move(a.ID, toPos(mt.Target), mt.Options, nowTick)
		a.LastMove = code

		switch code {
		case protocol.MoveOK:
			mt.NoPathStreak = 0
		case protocol.ErrNoPath:
			// A turn forfeited to a swap is not a routing failure.
			if w.trafficObs.consumedThisTick(a.ID) {
				continue
			}
			mt.NoPathStreak++
			if mt.NoPathStreak >= w.cfg.NoPathFailAfter {
				w.failMoveTask(a, nowTick, protocol.ErrNoPath, "no path to target")
			}
		default:
			w.failMoveTask(a, nowTick, code, "move rejected")
		}
	}
}

// stepToward is the move primitive: it plans (or reuses) a path to target
// and registers an intent to enter the next cell. A blocked step still
// returns OK; the position just does not change at resolution.
func (w *World) stepToward(agentID string, target Vec2i, opts tasks.MoveOptions, nowTick uint64) string {
	a := w.agents[agentID]
	if a == nil {
		return protocol.ErrNotFound
	}
	if !w.walkable(target) {
		return protocol.ErrInvalidTarget
	}
	if a.Pos == target {
		return protocol.MoveOK
	}

	mt := a.MoveTask
	if mt != nil && mt.Target != target {
		mt = nil
	}
	next, ok := w.reusablePathStep(a, mt, opts, nowTick)
	if !ok {
		path, found := w.planPath(a, target, opts)
		if !found {
			if mt != nil {
				mt.ClearPath()
			}
			return protocol.ErrNoPath
		}
		if mt != nil {
			mt.Path = path
			mt.Cursor = 0
			mt.PathTick = nowTick
		}
		next = path[0]
	}
	w.moveIntents[agentID] = moveIntent{To: next}
	return protocol.MoveOK
}

// reusablePathStep returns the next cached path cell when the cache is
// fresh and the agent is still adjacent to it.
func (w *World) reusablePathStep(a *Agent, mt *tasks.MovementTask, opts tasks.MoveOptions, nowTick uint64) (Vec2i, bool) {
	if mt == nil || len(mt.Path) == 0 {
		return Vec2i{}, false
	}
	reuse := opts.ReusePath
	if reuse == 0 {
		reuse = w.cfg.DefaultReusePath
	}
	if reuse < 0 || nowTick < mt.PathTick || nowTick-mt.PathTick >= uint64(reuse) {
		return Vec2i{}, false
	}
	advanceCursor(mt, a.Pos)
	next, ok := mt.NextStep()
	if !ok || !w.walkable(next) {
		return Vec2i{}, false
	}
	if pathfind.Chebyshev(toPos(a.Pos), toPos(next)) != 1 {
		return Vec2i{}, false
	}
	return next, true
}

func (w *World) planPath(a *Agent, target Vec2i, opts tasks.MoveOptions) ([]Vec2i, bool) {
	passable := func(p pathfind.Pos) bool {
		v := fromPos(p)
		if !w.walkable(v) {
			return false
		}
		if opts.IgnoreAgents || v == target {
			return true
		}
		occ, taken := w.occ[v]
		return !taken || occ == a.ID
	}
	raw, ok := pathfind.FindPath(toPos(a.Pos), toPos(target), w.cfg.PathSearchMaxNodes, passable)
	if !ok || len(raw) == 0 {
		return nil, false
	}
	path := make([]Vec2i, len(raw))
	for i, p := range raw {
		path[i] = fromPos(p)
	}
	return path, true
}

// advanceCursor moves the cursor past the agent's current cell if the
// agent stands on a later point of its path.
func advanceCursor(mt *tasks.MovementTask, pos Vec2i) {
	for i := mt.Cursor; i < len(mt.Path); i++ {
		if mt.Path[i] == pos {
			mt.Cursor = i + 1
			return
		}
	}
}

// moveInDirection replaces the agent's intent for this tick with a single
// step in dir.
func (w *World) moveInDirection(agentID string, dir pathfind.Direction) string {
	a := w.agents[agentID]
	if a == nil {
		return protocol.ErrNotFound
	}
	if !dir.Valid() {
		return protocol.ErrInvalidTarget
	}
	dest := fromPos(toPos(a.Pos).Step(dir))
	if !w.walkable(dest) {
		return protocol.ErrInvalidTarget
	}
	w.moveIntents[agentID] = moveIntent{To: dest, Forced: true}
	return protocol.MoveOK
}

func (w *World) resolveIntents() {
	if len(w.moveIntents) == 0 {
		return
	}
	list := make([]intents.Intent, 0, len(w.moveIntents))
	for id, mi := range w.moveIntents {
		a := w.agents[id]
		if a == nil {
			continue
		}
		list = append(list, intents.Intent{AgentID: id, From: toIntentPos(a.Pos), To: toIntentPos(mi.To), Forced: mi.Forced})
	}
	occupant := make(map[intents.Pos]string, len(w.agents))
	for id, a := range w.agents {
		occupant[toIntentPos(a.Pos)] = id
	}
	moved := intents.Resolve(list, occupant, func(p intents.Pos) bool {
		return w.walkable(Vec2i{X: p.X, Y: p.Y})
	})
	for id, p := range moved {
		w.agents[id].Pos = Vec2i{X: p.X, Y: p.Y}
	}
	clear(w.moveIntents)
	w.rebuildOccupancy()
}

func (w *World) systemTaskCompletion(nowTick uint64) {
	for _, a := range w.sortedAgents() {
		mt := a.MoveTask
		if mt == nil {
			continue
		}
		advanceCursor(mt, a.Pos)
		if a.Pos != mt.Target {
			continue
		}
		w.endMoveTask(a)
		a.AddEvent(protocol.Event{
			"t":       nowTick,
			"type":    "TASK_DONE",
			"task_id": mt.TaskID,
			"kind":    string(mt.Kind),
		})
	}
}

func (w *World) failMoveTask(a *Agent, nowTick uint64, code, message string) {
	mt := a.MoveTask
	if mt == nil {
		return
	}
	w.endMoveTask(a)
	a.AddEvent(protocol.Event{
		"t":       nowTick,
		"type":    "TASK_FAIL",
		"task_id": mt.TaskID,
		"kind":    string(mt.Kind),
		"code":    code,
		"message": message,
	})
	w.log.Debug().Str("agent_id", a.ID).Str("task_id", mt.TaskID).Str("code", code).Msg("move task failed")
}
