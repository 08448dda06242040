package world

import (
	"gridtraffic.ai/internal/persistence/snapshot"
)

func (w *World) exportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	tc := w.traffic.Config()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.TickRateHz,
		ObsRadius:          w.cfg.ObsRadius,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		NoPathFailAfter:    w.cfg.NoPathFailAfter,
		DefaultReusePath:   w.cfg.DefaultReusePath,
		PathSearchMaxNodes: w.cfg.PathSearchMaxNodes,
		Traffic:            snapshot.TrafficV1{StuckLimit: tc.StuckLimit, SwapDelay: tc.SwapDelay},
		Map: snapshot.MapV1{
			Name: w.grid.Name,
			Rows: w.grid.Rows(),
		},
		Counters: snapshot.CountersV1{
			NextAgentNum: w.nextAgentNum.Load(),
			NextTaskNum:  w.nextTaskNum.Load(),
		},
	}

	all := w.sortedAgents()
	snap.Agents = make([]snapshot.AgentV1, 0, len(all))
	for _, a := range all {
		av := snapshot.AgentV1{ID: a.ID, Name: a.Name, Pos: vecArray(a.Pos)}
		if mt := a.MoveTask; mt != nil {
			av.Task = &snapshot.TaskV1{
				TaskID:       mt.TaskID,
				Kind:         string(mt.Kind),
				Target:       vecArray(mt.Target),
				ReusePath:    mt.Options.ReusePath,
				IgnoreAgents: mt.Options.IgnoreAgents,
				StartPos:     vecArray(mt.StartPos),
				StartedTick:  mt.StartedTick,
				NoPathStreak: mt.NoPathStreak,
				Cursor:       mt.Cursor,
				PathTick:     mt.PathTick,
			}
			for _, p := range mt.Path {
				av.Task.Path = append(av.Task.Path, vecArray(p))
			}
		}
		snap.Agents = append(snap.Agents, av)
	}
	for _, e := range w.traffic.Tracker().Entries() {
		snap.Tracker = append(snap.Tracker, snapshot.TrackerV1{
			AgentID:     e.AgentID,
			Tick:        e.Tick,
			Pos:         [2]int{e.X, e.Y},
			SwapPending: e.SwapPending,
		})
	}
	return snap
}
