package world

import (
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/tasks"
)

const taskTypeMoveTo = "MOVE_TO"

func (w *World) applyAct(a *Agent, act protocol.ActMsg, nowTick uint64) {
	// Staleness check: accept only [now-2, now].
	if act.Tick+2 < nowTick || act.Tick > nowTick {
		a.AddEvent(actionResult(nowTick, "ACT", false, protocol.ErrStale, "act tick out of range"))
		return
	}

	// Cancel first.
	for _, cid := range act.Cancel {
		if a.MoveTask != nil && a.MoveTask.TaskID == cid {
			w.endMoveTask(a)
			a.AddEvent(actionResult(nowTick, cid, true, "", "canceled"))
			continue
		}
		a.AddEvent(actionResult(nowTick, cid, false, protocol.ErrInvalidTarget, "task not found"))
	}

	for _, tr := range act.Tasks {
		w.applyTaskReq(a, tr, nowTick)
	}
}

func (w *World) applyTaskReq(a *Agent, tr protocol.TaskReq, nowTick uint64) {
	if tr.Type != taskTypeMoveTo {
		a.AddEvent(actionResult(nowTick, tr.ID, false, protocol.ErrBadRequest, "unknown task type"))
		return
	}
	if a.MoveTask != nil {
		a.AddEvent(actionResult(nowTick, tr.ID, false, protocol.ErrConflict, "movement task slot occupied"))
		return
	}
	target := Vec2i{X: tr.Target[0], Y: tr.Target[1]}
	if !w.walkable(target) {
		a.AddEvent(actionResult(nowTick, tr.ID, false, protocol.ErrInvalidTarget, "target is off-grid or solid"))
		return
	}
	ignoreAgents := true
	if tr.IgnoreAgents != nil {
		ignoreAgents = *tr.IgnoreAgents
	}

	taskID := w.newTaskID()
	a.MoveTask = &tasks.MovementTask{
		TaskID: taskID,
		Kind:   tasks.KindMoveTo,
		Target: target,
		Options: tasks.MoveOptions{
			ReusePath:    tr.ReusePath,
			IgnoreAgents: ignoreAgents,
		},
		StartPos:    a.Pos,
		StartedTick: nowTick,
	}
	a.AddEvent(protocol.Event{
		"t":       nowTick,
		"type":    "ACTION_RESULT",
		"ref":     tr.ID,
		"ok":      true,
		"task_id": taskID,
	})
}

// endMoveTask clears the agent's task and the traffic record tied to it.
func (w *World) endMoveTask(a *Agent) {
	a.MoveTask = nil
	w.traffic.Tracker().Remove(a.ID)
}

func actionResult(tick uint64, ref string, ok bool, code string, message string) protocol.Event {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
		if message == "" {
			message = "unknown error code"
		}
	}
	e := protocol.Event{
		"t":    tick,
		"type": "ACTION_RESULT",
		"ref":  ref,
		"ok":   ok,
	}
	if code != "" {
		e["code"] = code
	}
	if message != "" {
		e["message"] = message
	}
	return e
}
