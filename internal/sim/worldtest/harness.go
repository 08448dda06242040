package worldtest

import (
	"encoding/json"
	"sort"
	"testing"

	"gridtraffic.ai/internal/persistence/snapshot"
	"gridtraffic.ai/internal/protocol"
	world "gridtraffic.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join() issues JoinRequest via StepOnce()
// - Step*/MoveTo issue ACT via StepOnce()
// - Per-agent Out channels carry OBS JSON
// - ExportSnapshot/Debug* helpers provide deterministic preconditions
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T *testing.T
	W *world.World

	sessions map[string]*session
	// events accumulates every OBS event per agent since the last ClearEvents.
	events map[string][]protocol.Event
}

func NewHarness(t *testing.T, cfg world.WorldConfig) *Harness {
	t.Helper()

	w, err := world.New(cfg)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
// This is useful for snapshot round-trip tests where the snapshot is imported first.
func NewHarnessWithWorld(t *testing.T, w *world.World) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	return &Harness{
		T:        t,
		W:        w,
		sessions: map[string]*session{},
		events:   map[string][]protocol.Event{},
	}
}

type session struct {
	AgentID string
	Out     chan []byte
	lastObs protocol.ObsMsg
}

func (h *Harness) Join(agentName string) string {
	h.T.Helper()

	out := make(chan []byte, 16)
	resp := make(chan world.JoinResponse, 1)
	_, _ = h.W.StepOnce([]world.JoinRequest{{
		Name: agentName,
		Out:  out,
		Resp: resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Err != "" || jr.Welcome.AgentID == "" {
		h.T.Fatalf("join failed: %q", jr.Err)
	}
	s := &session{AgentID: jr.Welcome.AgentID, Out: out}
	h.sessions[s.AgentID] = s
	h.drainAllObs()
	return s.AgentID
}

// JoinAt joins an agent and teleports it to pos.
func (h *Harness) JoinAt(agentName string, pos world.Vec2i) string {
	h.T.Helper()
	id := h.Join(agentName)
	h.SetAgentPos(id, pos)
	return id
}

func (h *Harness) LastObsFor(agentID string) protocol.ObsMsg {
	h.T.Helper()
	s := h.sessions[agentID]
	if s == nil {
		h.T.Fatalf("unknown agent id: %q", agentID)
	}
	return s.lastObs
}

// MoveTo returns an ACT envelope that starts a MOVE_TO task.
func (h *Harness) MoveTo(agentID, ref string, target world.Vec2i, ignoreAgents bool) world.ActionEnvelope {
	return h.Act(agentID, []protocol.TaskReq{{
		ID:           ref,
		Type:         "MOVE_TO",
		Target:       [2]int{target.X, target.Y},
		IgnoreAgents: &ignoreAgents,
	}}, nil)
}

func (h *Harness) Act(agentID string, tasks []protocol.TaskReq, cancel []string) world.ActionEnvelope {
	return world.ActionEnvelope{
		AgentID: agentID,
		Act: protocol.ActMsg{
			Type:            protocol.TypeAct,
			ProtocolVersion: protocol.Version,
			Tick:            h.W.CurrentTick(),
			AgentID:         agentID,
			Tasks:           tasks,
			Cancel:          cancel,
		},
	}
}

func (h *Harness) StepMulti(actions ...world.ActionEnvelope) string {
	h.T.Helper()
	_, digest := h.W.StepOnce(nil, nil, actions)
	h.drainAllObs()
	return digest
}

func (h *Harness) StepNoop() string {
	h.T.Helper()
	return h.StepMulti()
}

func (h *Harness) StepN(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.StepNoop()
	}
}

func (h *Harness) Remove(agentID string) {
	h.T.Helper()
	_, _ = h.W.StepOnceRemoving([]string{agentID}, nil)
	h.drainAllObs()
}

func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	// Keep tick stable: export at currentTick-1 then import would restore to currentTick.
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

func (h *Harness) SetAgentPos(agentID string, pos world.Vec2i) {
	h.T.Helper()
	if ok := h.W.DebugSetAgentPos(agentID, pos); !ok {
		h.T.Fatalf("DebugSetAgentPos(%s, %v) returned false", agentID, pos)
	}
}

func (h *Harness) Pos(agentID string) world.Vec2i {
	h.T.Helper()
	p, ok := h.W.DebugAgentPos(agentID)
	if !ok {
		h.T.Fatalf("unknown agent id: %q", agentID)
	}
	return p
}

func (h *Harness) SetWall(pos world.Vec2i) {
	h.T.Helper()
	if ok := h.W.DebugSetWall(pos, true); !ok {
		h.T.Fatalf("DebugSetWall(%v) returned false", pos)
	}
}

// Events returns every event delivered to the agent since the last ClearEvents.
func (h *Harness) Events(agentID string) []protocol.Event {
	return h.events[agentID]
}

func (h *Harness) ClearEvents() {
	h.events = map[string][]protocol.Event{}
}

func (h *Harness) drainAllObs() {
	h.T.Helper()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		h.drainOneObs(h.sessions[id])
	}
}

func (h *Harness) drainOneObs(s *session) {
	h.T.Helper()
	for {
		var b []byte
		select {
		case b = <-s.Out:
		default:
			return
		}
		var obs protocol.ObsMsg
		if err := json.Unmarshal(b, &obs); err != nil {
			h.T.Fatalf("unmarshal OBS: %v", err)
		}
		s.lastObs = obs
		h.events[s.AgentID] = append(h.events[s.AgentID], obs.Events...)
	}
}
