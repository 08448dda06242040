package world

import (
	"context"
	"errors"

	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

type AgentView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Pos       [2]int    `json:"pos"`
	Connected bool      `json:"connected"`
	LastMove  string    `json:"last_move,omitempty"`
	Task      *TaskView `json:"task,omitempty"`
}

type TaskView struct {
	TaskID       string `json:"task_id"`
	Target       [2]int `json:"target"`
	PathLeft     int    `json:"path_left"`
	NoPathStreak int    `json:"no_path_streak,omitempty"`
	Stalled      bool   `json:"stalled,omitempty"`
}

type StateView struct {
	WorldID string      `json:"world_id"`
	Tick    uint64      `json:"tick"`
	Width   int         `json:"width"`
	Height  int         `json:"height"`
	Agents  []AgentView `json:"agents"`
}

type TrackerView struct {
	Tick    uint64          `json:"tick"`
	Config  traffic.Config  `json:"config"`
	Entries []traffic.Entry `json:"entries"`
}

var ErrAgentNotFound = errors.New("agent not found")

type queryKind int

const (
	queryState queryKind = iota + 1
	queryTracker
	queryAgent
)

type queryReq struct {
	Kind    queryKind
	AgentID string
	Resp    chan queryResp
}

type queryResp struct {
	State   StateView
	Tracker TrackerView
	Agent   AgentView
	Err     error
}

// RequestState returns every agent's position and task from the world loop goroutine.
func (w *World) RequestState(ctx context.Context) (StateView, error) {
	r, err := w.query(ctx, queryReq{Kind: queryState})
	return r.State, err
}

// RequestTracker returns the traffic tracker table from the world loop goroutine.
func (w *World) RequestTracker(ctx context.Context) (TrackerView, error) {
	r, err := w.query(ctx, queryReq{Kind: queryTracker})
	return r.Tracker, err
}

// RequestAgent returns one agent's view, or ErrAgentNotFound.
func (w *World) RequestAgent(ctx context.Context, agentID string) (AgentView, error) {
	r, err := w.query(ctx, queryReq{Kind: queryAgent, AgentID: agentID})
	return r.Agent, err
}

// RemoveAgent queues a despawn for the next tick boundary.
func (w *World) RemoveAgent(ctx context.Context, agentID string) error {
	if w == nil || w.remove == nil {
		return errors.New("agent removal not available")
	}
	select {
	case w.remove <- agentID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) query(ctx context.Context, req queryReq) (queryResp, error) {
	if w == nil || w.queries == nil {
		return queryResp{}, errors.New("world query not available")
	}
	req.Resp = make(chan queryResp, 1)
	select {
	case w.queries <- req:
	case <-ctx.Done():
		return queryResp{}, ctx.Err()
	}
	select {
	case resp := <-req.Resp:
		return resp, resp.Err
	case <-ctx.Done():
		return queryResp{}, ctx.Err()
	}
}

func (w *World) handleQuery(req queryReq) {
	resp := queryResp{}
	switch req.Kind {
	case queryState:
		resp.State = w.stateView()
	case queryTracker:
		resp.Tracker = TrackerView{
			Tick:    w.tick.Load(),
			Config:  w.traffic.Config(),
			Entries: w.traffic.Tracker().Entries(),
		}
	case queryAgent:
		a := w.agents[req.AgentID]
		if a == nil {
			resp.Err = ErrAgentNotFound
			break
		}
		resp.Agent = w.agentView(a)
	default:
		resp.Err = errors.New("unknown query")
	}
	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- resp:
	default:
	}
}

func (w *World) stateView() StateView {
	all := w.sortedAgents()
	out := StateView{
		WorldID: w.cfg.ID,
		Tick:    w.tick.Load(),
		Width:   w.grid.Width,
		Height:  w.grid.Height,
		Agents:  make([]AgentView, 0, len(all)),
	}
	for _, a := range all {
		out.Agents = append(out.Agents, w.agentView(a))
	}
	return out
}

func (w *World) agentView(a *Agent) AgentView {
	_, connected := w.clients[a.ID]
	v := AgentView{
		ID:        a.ID,
		Name:      a.Name,
		Pos:       vecArray(a.Pos),
		Connected: connected,
		LastMove:  a.LastMove,
	}
	if mt := a.MoveTask; mt != nil {
		left := len(mt.Path) - mt.Cursor
		if left < 0 {
			left = 0
		}
		v.Task = &TaskView{
			TaskID:       mt.TaskID,
			Target:       vecArray(mt.Target),
			PathLeft:     left,
			NoPathStreak: mt.NoPathStreak,
			Stalled:      w.isStalled(a, w.lastTick()),
		}
	}
	return v
}

// lastTick is the most recently simulated tick. Queries are served between
// ticks, after the counter has advanced.
func (w *World) lastTick() uint64 {
	if t := w.tick.Load(); t > 0 {
		return t - 1
	}
	return 0
}
