package world

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"gridtraffic.ai/internal/persistence/snapshot"
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/gridmap"
	"gridtraffic.ai/internal/sim/tasks"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
	trafficruntime "gridtraffic.ai/internal/sim/world/feature/traffic/runtime"
	trafficctx "gridtraffic.ai/internal/sim/world/featurectx/traffic"
	"gridtraffic.ai/internal/sim/world/logic/pathfind"
)

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type AttachRequest struct {
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

// LeaveRequest detaches a session. Out identifies the session's channel so
// a late leave from a replaced connection does not detach its successor;
// nil detaches whatever client is attached.
type LeaveRequest struct {
	AgentID string
	Out     chan []byte
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	// Err is a protocol error code when the join was refused.
	Err string
}

type ActionEnvelope struct {
	AgentID string
	Act     protocol.ActMsg
}

type RecordedJoin struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Pos     [2]int `json:"pos"`
}

type RecordedAction struct {
	AgentID string          `json:"agent_id"`
	Act     protocol.ActMsg `json:"act"`
}

// RecordedSwap is one commanded swap: AgentID was stalled and ordered
// BlockerID out of Cell toward AgentID's position.
type RecordedSwap struct {
	AgentID   string `json:"agent_id"`
	BlockerID string `json:"blocker_id"`
	Cell      [2]int `json:"cell"`
	Dir       string `json:"dir"`
	Code      string `json:"code"`
}

type TickLogEntry struct {
	Tick    uint64           `json:"tick"`
	Joins   []RecordedJoin   `json:"joins,omitempty"`
	Leaves  []string         `json:"leaves,omitempty"`
	Removed []string         `json:"removed,omitempty"`
	Config  []ConfigUpdate   `json:"config,omitempty"`
	Actions []RecordedAction `json:"actions,omitempty"`
	Swaps   []RecordedSwap   `json:"swaps,omitempty"`
	Stalls  []string         `json:"stalls,omitempty"`
	Digest  string           `json:"digest"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// MetricsSink receives traffic decisions and step timings. Implemented in
// internal/metrics; calls happen on the world loop goroutine.
type MetricsSink interface {
	ObserveVerdict(verdict string)
	ObserveResolution(outcome string)
	ObserveSwapCommand(code string)
	ObserveSwapConsumed()
	ObserveStep(d time.Duration, agents, tracked int)
}

type moveIntent struct {
	To Vec2i
	// Forced is set for commanded moves, which win contested cells.
	Forced bool
}

type clientState struct {
	Out chan []byte
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg  WorldConfig
	grid gridmap.Map

	tick    atomic.Uint64
	metrics atomic.Value

	agents  map[string]*Agent
	clients map[string]*clientState

	// occ maps cells to the agent standing there. Rebuilt whenever positions change.
	occ map[Vec2i]string
	// moveIntents holds this tick's requested cell per agent; last command wins.
	moveIntents map[string]moveIntent

	traffic    *trafficruntime.Interceptor
	trafficObs *trafficObserver

	inbox        chan ActionEnvelope
	join         chan JoinRequest
	attach       chan AttachRequest
	leave        chan LeaveRequest
	remove       chan string
	admin        chan adminSnapshotReq
	queries      chan queryReq
	configUpdate chan configUpdateReq
	stop         chan struct{}

	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	observers     map[string]*observerState

	nextAgentNum atomic.Uint64
	nextTaskNum  atomic.Uint64

	// Optional sinks (may be nil).
	tickLogger   TickLogger
	snapshotSink chan<- snapshot.SnapshotV1
	sink         MetricsSink

	log zerolog.Logger
}

func New(cfg WorldConfig) (*World, error) {
	cfg.applyDefaults()
	if err := cfg.Traffic.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	if len(cfg.Map.Spawns()) == 0 && !hasFloor(cfg.Map) {
		return nil, fmt.Errorf("world %s: map %q has no walkable cells", cfg.ID, cfg.Map.Name)
	}

	w := &World{
		cfg:          cfg,
		grid:         cfg.Map,
		agents:       map[string]*Agent{},
		clients:      map[string]*clientState{},
		occ:          map[Vec2i]string{},
		moveIntents:  map[string]moveIntent{},
		inbox:        make(chan ActionEnvelope, 1024),
		join:         make(chan JoinRequest, 64),
		attach:       make(chan AttachRequest, 64),
		leave:        make(chan LeaveRequest, 64),
		remove:       make(chan string, 64),
		admin:        make(chan adminSnapshotReq, 16),
		queries:      make(chan queryReq, 64),
		configUpdate: make(chan configUpdateReq, 8),
		stop:         make(chan struct{}),

		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		observers:     map[string]*observerState{},

		log: zerolog.Nop(),
	}
	w.trafficObs = &trafficObserver{w: w}
	w.traffic = trafficruntime.NewInterceptor(w.trafficEnv(), traffic.NewTracker(), cfg.Traffic, w.trafficObs)
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

// trafficEnv binds the world's movement primitives and spatial queries
// to the traffic interceptor.
func (w *World) trafficEnv() trafficctx.Env {
	return trafficctx.Env{
		StepTowardFn: func(agentID string, target pathfind.Pos, opts tasks.MoveOptions) string {
			return w.stepToward(agentID, fromPos(target), opts, w.tick.Load())
		},
		AgentPosFn: func(agentID string) (pathfind.Pos, bool) {
			a := w.agents[agentID]
			if a == nil {
				return pathfind.Pos{}, false
			}
			return toPos(a.Pos), true
		},
		DestinationFn: func(agentID string) (pathfind.Pos, bool) {
			a := w.agents[agentID]
			if a == nil || a.MoveTask == nil || len(a.MoveTask.Path) == 0 {
				return pathfind.Pos{}, false
			}
			return toPos(a.MoveTask.Path[len(a.MoveTask.Path)-1]), true
		},
		NextStepFn: func(agentID string) (pathfind.Pos, bool) {
			a := w.agents[agentID]
			if a == nil {
				return pathfind.Pos{}, false
			}
			next, ok := a.MoveTask.NextStep()
			return toPos(next), ok
		},
		OccupantAtFn: func(p pathfind.Pos) (string, bool) {
			id, ok := w.occ[fromPos(p)]
			return id, ok
		},
		MoveInDirectionFn: w.moveInDirection,
	}
}

func hasFloor(m gridmap.Map) bool {
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Solid(x, y) {
				return true
			}
		}
	}
	return false
}

func (w *World) sortedAgents() []*Agent {
	out := make([]*Agent, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *World) rebuildOccupancy() {
	clear(w.occ)
	for id, a := range w.agents {
		w.occ[a.Pos] = id
	}
}

func (w *World) newTaskID() string {
	n := w.nextTaskNum.Add(1)
	return fmt.Sprintf("T%06d", n)
}
