package traffic

import (
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/tasks"
	"gridtraffic.ai/internal/sim/world/logic/pathfind"
)

// Env adapts world callbacks to the traffic runtime's Env interface.
// Unset callbacks behave like an empty world.
type Env struct {
	StepTowardFn      func(agentID string, target pathfind.Pos, opts tasks.MoveOptions) string
	AgentPosFn        func(agentID string) (pathfind.Pos, bool)
	DestinationFn     func(agentID string) (pathfind.Pos, bool)
	NextStepFn        func(agentID string) (pathfind.Pos, bool)
	OccupantAtFn      func(pos pathfind.Pos) (string, bool)
	MoveInDirectionFn func(agentID string, dir pathfind.Direction) string
}

func (e Env) StepToward(agentID string, target pathfind.Pos, opts tasks.MoveOptions) string {
	if e.StepTowardFn == nil {
		return protocol.ErrNotFound
	}
	return e.StepTowardFn(agentID, target, opts)
}

func (e Env) AgentPos(agentID string) (pathfind.Pos, bool) {
	if e.AgentPosFn == nil {
		return pathfind.Pos{}, false
	}
	return e.AgentPosFn(agentID)
}

func (e Env) Destination(agentID string) (pathfind.Pos, bool) {
	if e.DestinationFn == nil {
		return pathfind.Pos{}, false
	}
	return e.DestinationFn(agentID)
}

func (e Env) NextStep(agentID string) (pathfind.Pos, bool) {
	if e.NextStepFn == nil {
		return pathfind.Pos{}, false
	}
	return e.NextStepFn(agentID)
}

func (e Env) OccupantAt(pos pathfind.Pos) (string, bool) {
	if e.OccupantAtFn == nil {
		return "", false
	}
	return e.OccupantAtFn(pos)
}

func (e Env) MoveInDirection(agentID string, dir pathfind.Direction) string {
	if e.MoveInDirectionFn == nil {
		return protocol.ErrNotFound
	}
	return e.MoveInDirectionFn(agentID, dir)
}
