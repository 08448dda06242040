package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	persistlog "gridtraffic.ai/internal/persistence/log"
	"gridtraffic.ai/internal/persistence/snapshot"
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/gridmap"
	"gridtraffic.ai/internal/sim/world"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

func corridorWorld(t *testing.T, tc traffic.Config) *world.World {
	t.Helper()
	m, err := gridmap.FromRows("corridor", []string{
		"#######",
		"#.....#",
		"#######",
	})
	require.NoError(t, err)
	w, err := world.New(world.WorldConfig{ID: "R", Map: m, Traffic: tc})
	require.NoError(t, err)
	return w
}

// recordCorridor runs a mover into an idle blocker so that one swap is
// logged, then detaches and removes the agents.
func recordCorridor(t *testing.T) []string {
	t.Helper()
	files, _ := recordCorridorWithSnapshot(t, 0)
	return files
}

// recordCorridorWithSnapshot also exports a snapshot at the end of snapTick.
func recordCorridorWithSnapshot(t *testing.T, snapTick uint64) ([]string, snapshot.SnapshotV1) {
	t.Helper()
	var snap snapshot.SnapshotV1
	takeSnap := func(w *world.World) {
		if w.CurrentTick() == snapTick+1 {
			snap = w.ExportSnapshot(snapTick)
		}
	}
	dir := t.TempDir()
	w := corridorWorld(t, traffic.Config{})
	tl := persistlog.NewTickLogger(dir)
	w.SetTickLogger(tl)

	w.StepOnce([]world.JoinRequest{{Name: "mover"}, {Name: "blocker"}}, nil, nil)
	takeSnap(w)
	ignore := true
	w.StepOnce(nil, nil, []world.ActionEnvelope{{
		AgentID: "A1",
		Act: protocol.ActMsg{
			Type:            protocol.TypeAct,
			ProtocolVersion: protocol.Version,
			Tick:            w.CurrentTick(),
			Tasks:           []protocol.TaskReq{{ID: "K1", Type: "MOVE_TO", Target: [2]int{5, 1}, IgnoreAgents: &ignore}},
		},
	}})
	takeSnap(w)
	for i := 0; i < 6; i++ {
		w.StepOnce(nil, nil, nil)
		takeSnap(w)
	}
	w.StepOnce(nil, []string{"A2"}, nil)
	w.StepOnceRemoving([]string{"A1"}, nil)
	require.NoError(t, tl.Close())

	files, err := persistlog.TickFiles(dir)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	return files, snap
}

func TestVerify_ReplaysRecordedTicks(t *testing.T) {
	files := recordCorridor(t)

	w := corridorWorld(t, traffic.Config{})
	checked, err := verify(w, files, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), checked)
	assert.Equal(t, uint64(10), w.CurrentTick())
}

func TestVerify_FromSnapshotTakenMidStall(t *testing.T) {
	// Tick 2 ends with the mover blocked but not yet stalled; the swap
	// happens two ticks later.
	files, snap := recordCorridorWithSnapshot(t, 2)
	require.NotEmpty(t, snap.Tracker)

	path := snapshot.Path(t.TempDir(), 2)
	require.NoError(t, snapshot.WriteSnapshot(path, snap))
	prev := snapPath
	snapPath = path
	t.Cleanup(func() { snapPath = prev })

	w, err := openWorld("R")
	require.NoError(t, err)
	require.Equal(t, uint64(3), w.CurrentTick())

	checked, err := verify(w, files, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), checked)
	assert.Equal(t, uint64(10), w.CurrentTick())
}

func TestVerify_StopsAtToTick(t *testing.T) {
	files := recordCorridor(t)

	w := corridorWorld(t, traffic.Config{})
	checked, err := verify(w, files, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), checked)
	assert.Equal(t, uint64(5), w.CurrentTick())
}

func TestVerify_DetectsDivergence(t *testing.T) {
	files := recordCorridor(t)

	// A longer stuck limit delays the swap, so positions drift apart.
	w := corridorWorld(t, traffic.Config{StuckLimit: 4, SwapDelay: 8})
	_, err := verify(w, files, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest mismatch")
}

func TestStats_CountsSwapsPerAgent(t *testing.T) {
	files := recordCorridor(t)

	s, err := collectStats(files, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, s.Ticks)
	assert.Equal(t, 2, s.Joins)
	assert.Equal(t, 1, s.Leaves)
	assert.Equal(t, 1, s.Removed)
	assert.Equal(t, 1, s.Swaps)

	ranked := s.ranked(0)
	require.Len(t, ranked, 2)
	assert.Equal(t, "A1", ranked[0].AgentID)
	assert.GreaterOrEqual(t, ranked[0].Stalls, 1)
	assert.Equal(t, 1, ranked[0].Unblocked)
	assert.Equal(t, "A2", ranked[1].AgentID)
	assert.Equal(t, 1, ranked[1].Swaps)

	var buf bytes.Buffer
	require.NoError(t, s.writeTable(&buf, 1))
	assert.Contains(t, buf.String(), "A1")
	assert.NotContains(t, buf.String(), "A2")
}
