package world

import (
	"encoding/json"
	"time"
)

type stepInput struct {
	joins    []JoinRequest
	leaves   []LeaveRequest
	removals []string
	config   []configUpdateReq
	actions  []ActionEnvelope
}

func (w *World) stepInternal(in stepInput) {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	w.trafficObs.beginTick()

	// Apply leaves, removals and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(in.leaves))
	removals := in.removals
	for _, req := range in.leaves {
		id := req.AgentID
		if _, ok := w.agents[id]; !ok {
			continue
		}
		if !w.handleLeave(req) {
			continue
		}
		recordedLeaves = append(recordedLeaves, id)
		if w.cfg.DespawnOnLeave {
			removals = append(removals, id)
		}
	}
	recordedRemovals := make([]string, 0, len(removals))
	for _, id := range removals {
		if w.removeAgent(id) {
			recordedRemovals = append(recordedRemovals, id)
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(in.joins))
	for _, req := range in.joins {
		resp := w.joinAgent(req.Name, req.Out)
		if req.Resp != nil {
			req.Resp <- resp
		}
		if resp.Err != "" {
			continue
		}
		a := w.agents[resp.Welcome.AgentID]
		recordedJoins = append(recordedJoins, RecordedJoin{AgentID: a.ID, Name: a.Name, Pos: vecArray(a.Pos)})
	}

	// Tuning changes take effect before any movement this tick.
	var recordedConfig []ConfigUpdate
	for _, req := range in.config {
		if w.applyConfigUpdate(req) == nil {
			recordedConfig = append(recordedConfig, req.Update)
		}
	}

	// Apply actions in server_receive_order (the inbox order).
	recorded := make([]RecordedAction, 0, len(in.actions))
	for _, env := range in.actions {
		a := w.agents[env.AgentID]
		if a == nil {
			continue
		}
		env.Act.AgentID = env.AgentID // trust session identity
		recorded = append(recorded, RecordedAction{AgentID: env.AgentID, Act: env.Act})
		w.applyAct(a, env.Act, nowTick)
	}

	// Systems: movement (intents) -> resolution -> task completion.
	w.systemMovement(nowTick)
	w.resolveIntents()
	w.systemTaskCompletion(nowTick)

	// Build + send OBS for each agent. Agents without a client still drain events.
	all := w.sortedAgents()
	for _, a := range all {
		cl := w.clients[a.ID]
		if cl == nil {
			a.TakeEvents()
			continue
		}
		obs := w.buildObs(a, all, nowTick)
		b, err := json.Marshal(obs)
		if err != nil {
			w.log.Error().Err(err).Str("agent_id", a.ID).Msg("encode obs")
			continue
		}
		sendLatest(cl.Out, b)
	}

	entry := TickLogEntry{
		Tick:    nowTick,
		Joins:   recordedJoins,
		Leaves:  recordedLeaves,
		Removed: recordedRemovals,
		Config:  recordedConfig,
		Actions: recorded,
		Swaps:   w.trafficObs.swaps,
		Stalls:  w.trafficObs.stalls,
		Digest:  w.stateDigest(nowTick),
	}
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.Warn().Err(err).Uint64("tick", nowTick).Msg("tick log write failed")
		}
	}
	w.broadcastObservers(nowTick, entry)

	// Snapshot every N ticks (default 3000), starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		every := uint64(w.cfg.SnapshotEveryTicks)
		if nowTick%every == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				w.log.Warn().Uint64("tick", nowTick).Msg("snapshot dropped: sink backpressure")
			}
		}
	}

	stepDur := time.Since(stepStart)
	nextTick := w.tick.Add(1)
	tracked := w.traffic.Tracker().Len()
	if w.sink != nil {
		w.sink.ObserveStep(stepDur, len(w.agents), tracked)
	}

	activeTasks := 0
	for _, a := range w.agents {
		if a.MoveTask != nil {
			activeTasks++
		}
	}
	w.metrics.Store(WorldMetrics{
		Tick:          nextTick,
		Agents:        len(w.agents),
		Clients:       len(w.clients),
		ActiveTasks:   activeTasks,
		TrackedAgents: tracked,
		Traffic:       w.trafficObs.totals,
		StepMS:        float64(stepDur.Microseconds()) / 1000.0,
		TrafficConfig: w.traffic.Config(),
		QueueDepths: QueueDepths{
			Inbox:  len(w.inbox),
			Join:   len(w.join),
			Leave:  len(w.leave),
			Attach: len(w.attach),
		},
	})
}
