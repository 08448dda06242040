package world

import (
	"fmt"

	"gridtraffic.ai/internal/persistence/snapshot"
	"gridtraffic.ai/internal/sim/gridmap"
	"gridtraffic.ai/internal/sim/tasks"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

func (w *World) importSnapshot(s snapshot.SnapshotV1, withTracker bool) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	if s.Header.WorldID != "" && w.cfg.ID != "" && s.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world %q does not match %q", s.Header.WorldID, w.cfg.ID)
	}
	grid, err := gridmap.FromRows(s.Map.Name, s.Map.Rows)
	if err != nil {
		return fmt.Errorf("snapshot map: %w", err)
	}
	tc := traffic.Config{StuckLimit: s.Traffic.StuckLimit, SwapDelay: s.Traffic.SwapDelay}
	tc.ApplyDefaults()
	if err := tc.Validate(); err != nil {
		return fmt.Errorf("snapshot traffic config: %w", err)
	}

	agents := make(map[string]*Agent, len(s.Agents))
	seen := make(map[Vec2i]string, len(s.Agents))
	for _, av := range s.Agents {
		pos := Vec2i{X: av.Pos[0], Y: av.Pos[1]}
		if !grid.InBounds(pos.X, pos.Y) || grid.Solid(pos.X, pos.Y) {
			return fmt.Errorf("snapshot agent %s stands on a blocked cell %v", av.ID, av.Pos)
		}
		if other, dup := seen[pos]; dup {
			return fmt.Errorf("snapshot agents %s and %s share cell %v", other, av.ID, av.Pos)
		}
		seen[pos] = av.ID
		a := &Agent{ID: av.ID, Name: av.Name, Pos: pos}
		if tv := av.Task; tv != nil {
			a.MoveTask = &tasks.MovementTask{
				TaskID: tv.TaskID,
				Kind:   tasks.Kind(tv.Kind),
				Target: Vec2i{X: tv.Target[0], Y: tv.Target[1]},
				Options: tasks.MoveOptions{
					ReusePath:    tv.ReusePath,
					IgnoreAgents: tv.IgnoreAgents,
				},
				StartPos:     Vec2i{X: tv.StartPos[0], Y: tv.StartPos[1]},
				StartedTick:  tv.StartedTick,
				NoPathStreak: tv.NoPathStreak,
				Cursor:       tv.Cursor,
				PathTick:     tv.PathTick,
			}
			for _, p := range tv.Path {
				a.MoveTask.Path = append(a.MoveTask.Path, Vec2i{X: p[0], Y: p[1]})
			}
		}
		agents[a.ID] = a
	}

	if err := w.traffic.SetConfig(tc); err != nil {
		return err
	}
	w.cfg.Traffic = tc
	if s.TickRate > 0 {
		w.cfg.TickRateHz = s.TickRate
	}
	if s.ObsRadius > 0 {
		w.cfg.ObsRadius = s.ObsRadius
	}
	if s.SnapshotEveryTicks > 0 {
		w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	if s.NoPathFailAfter > 0 {
		w.cfg.NoPathFailAfter = s.NoPathFailAfter
	}
	if s.DefaultReusePath > 0 {
		w.cfg.DefaultReusePath = s.DefaultReusePath
	}
	if s.PathSearchMaxNodes > 0 {
		w.cfg.PathSearchMaxNodes = s.PathSearchMaxNodes
	}
	w.grid = grid
	w.cfg.Map = grid
	w.agents = agents
	w.clients = map[string]*clientState{}
	clear(w.moveIntents)
	w.rebuildOccupancy()
	tr := w.traffic.Tracker()
	tr.Reset()
	if withTracker {
		for _, tv := range s.Tracker {
			if _, ok := agents[tv.AgentID]; !ok {
				continue
			}
			tr.Set(tv.AgentID, traffic.Record{Tick: tv.Tick, X: tv.Pos[0], Y: tv.Pos[1], SwapPending: tv.SwapPending})
		}
	}
	w.nextAgentNum.Store(s.Counters.NextAgentNum)
	w.nextTaskNum.Store(s.Counters.NextTaskNum)
	w.tick.Store(s.Header.Tick + 1)

	w.log.Info().Uint64("tick", s.Header.Tick).Int("agents", len(agents)).Int("tracked", tr.Len()).Msg("snapshot imported")
	return nil
}
