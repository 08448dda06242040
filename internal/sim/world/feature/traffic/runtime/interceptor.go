package runtime

import (
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/tasks"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

// Interceptor wraps the move primitive with stall detection and
// swap-based obstruction resolution. With no obstruction its results and
// side effects match the primitive's.
//
// Agents are invoked in caller order. If A swaps B and B runs later in the
// same tick, B loses that tick to the swap; if B already ran, the command
// is consumed on B's next invocation instead.
type Interceptor struct {
	env     Env
	tracker *traffic.Tracker
	cfg     traffic.Config
	obs     Observer
}

func NewInterceptor(env Env, tracker *traffic.Tracker, cfg traffic.Config, obs Observer) *Interceptor {
	cfg.ApplyDefaults()
	if tracker == nil {
		tracker = traffic.NewTracker()
	}
	return &Interceptor{env: env, tracker: tracker, cfg: cfg, obs: obs}
}

func (i *Interceptor) Tracker() *traffic.Tracker { return i.tracker }
func (i *Interceptor) Config() traffic.Config    { return i.cfg }

// SetConfig replaces the thresholds; invalid configs are rejected.
func (i *Interceptor) SetConfig(cfg traffic.Config) error {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	i.cfg = cfg
	return nil
}

// Move is a drop-in replacement for the wrapped StepToward primitive.
func (i *Interceptor) Move(agentID string, target Pos, opts tasks.MoveOptions, nowTick uint64) string {
	if rec, ok := i.tracker.Get(agentID); ok && rec.SwapPending {
		rec.SwapPending = false
		i.tracker.Set(agentID, rec)
		if i.obs != nil {
			i.obs.OnSwapConsumed(agentID, nowTick)
		}
		return protocol.ErrNoPath
	}

	code := i.env.StepToward(agentID, target, opts)
	if code != protocol.MoveOK {
		return code
	}

	pos, ok := i.env.AgentPos(agentID)
	if !ok {
		return code
	}
	dest, ok := i.env.Destination(agentID)
	if !ok {
		dest = target
	}

	v := Detect(i.tracker, i.cfg, agentID, pos, dest, nowTick)
	if i.obs != nil {
		i.obs.OnVerdict(agentID, v, nowTick)
	}
	if v != VerdictStalled {
		return code
	}

	r := Resolve(i.env, i.tracker, i.cfg, agentID, pos, nowTick)
	if i.obs != nil {
		i.obs.OnResolution(agentID, r, nowTick)
	}
	return code
}

// OnAgentRemoved purges tracker state for a destroyed agent.
func (i *Interceptor) OnAgentRemoved(agentID string) {
	i.tracker.Remove(agentID)
}
