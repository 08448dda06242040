package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []LeaveRequest
	var pendingRemovals []string
	var pendingAdmin []adminSnapshotReq
	var pendingConfig []configUpdateReq

	w.log.Info().Int("tick_rate_hz", w.cfg.TickRateHz).Uint64("tick", w.tick.Load()).Msg("world loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-w.attach:
			w.handleAttach(req)
		case req := <-w.leave:
			pendingLeaves = append(pendingLeaves, req)
		case id := <-w.remove:
			pendingRemovals = append(pendingRemovals, id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case req := <-w.queries:
			w.handleQuery(req)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			delete(w.observers, id)
		case req := <-w.configUpdate:
			pendingConfig = append(pendingConfig, req)
		case env := <-w.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			w.stepInternal(stepInput{
				joins:    pendingJoins,
				leaves:   pendingLeaves,
				removals: pendingRemovals,
				config:   pendingConfig,
				actions:  pendingActions,
			})
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingRemovals = pendingRemovals[:0]
			pendingConfig = pendingConfig[:0]
			pendingActions = pendingActions[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, actions []ActionEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	reqs := make([]LeaveRequest, 0, len(leaves))
	for _, id := range leaves {
		reqs = append(reqs, LeaveRequest{AgentID: id})
	}
	w.stepInternal(stepInput{joins: joins, leaves: reqs, actions: actions})
	return tick, w.stateDigest(tick)
}

// StepOnceRemoving is StepOnce with agent removals applied at the tick boundary.
func (w *World) StepOnceRemoving(removals []string, actions []ActionEnvelope) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.stepInternal(stepInput{removals: removals, actions: actions})
	return tick, w.stateDigest(tick)
}

// StepLogged replays one tick log entry: its leaves, removals, joins, config
// changes and actions, in the order the live loop applied them. The world
// must be at entry.Tick.
func (w *World) StepLogged(e TickLogEntry) (tick uint64, digest string) {
	tick = w.tick.Load()
	in := stepInput{removals: e.Removed}
	for _, id := range e.Leaves {
		in.leaves = append(in.leaves, LeaveRequest{AgentID: id})
	}
	for _, j := range e.Joins {
		in.joins = append(in.joins, JoinRequest{Name: j.Name})
	}
	for _, u := range e.Config {
		in.config = append(in.config, configUpdateReq{Update: u})
	}
	for _, ra := range e.Actions {
		in.actions = append(in.actions, ActionEnvelope{AgentID: ra.AgentID, Act: ra.Act})
	}
	w.stepInternal(in)
	return tick, w.stateDigest(tick)
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
