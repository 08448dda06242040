package runtime

import (
	"gridtraffic.ai/internal/sim/tasks"
	"gridtraffic.ai/internal/sim/world/logic/pathfind"
)

type Pos = pathfind.Pos

// ResolveEnv is the world view the obstruction resolver needs.
type ResolveEnv interface {
	AgentPos(agentID string) (Pos, bool)
	// NextStep returns the next cell on the agent's cached path.
	NextStep(agentID string) (Pos, bool)
	OccupantAt(pos Pos) (agentID string, ok bool)
	MoveInDirection(agentID string, dir pathfind.Direction) string
}

// Env is everything the interceptor consumes: the wrapped move primitive,
// the path accessor and the resolver's spatial queries.
type Env interface {
	ResolveEnv
	StepToward(agentID string, target Pos, opts tasks.MoveOptions) string
	// Destination returns the destination cached with the agent's path.
	Destination(agentID string) (Pos, bool)
}

// Observer receives engine decisions. All methods are called synchronously
// from the world loop.
type Observer interface {
	OnVerdict(agentID string, v Verdict, nowTick uint64)
	OnResolution(agentID string, r Resolution, nowTick uint64)
	OnSwapConsumed(agentID string, nowTick uint64)
}
