package world

import (
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/tasks"
)

type Agent struct {
	ID   string
	Name string

	// ResumeToken is a transport-level token used for reconnects.
	// It is intentionally NOT included in snapshots/digests.
	ResumeToken string

	Pos Vec2i

	MoveTask *tasks.MovementTask
	// LastMove is the result code of the agent's last movement call.
	LastMove string

	Events []protocol.Event
}

func (a *Agent) AddEvent(e protocol.Event) {
	a.Events = append(a.Events, e)
}

func (a *Agent) TakeEvents() []protocol.Event {
	ev := a.Events
	a.Events = nil
	return ev
}
