package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	tlog "gridtraffic.ai/internal/persistence/log"
	"gridtraffic.ai/internal/persistence/snapshot"
	"gridtraffic.ai/internal/protocol"
	"gridtraffic.ai/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(tlog.ConfigAuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	assert.Equal(t, uint64(1), st.DropTickTotal)
	assert.Equal(t, uint64(1), st.DropAuditTotal)
	assert.Equal(t, uint64(1), st.DropSnapshotTotal)
	assert.Equal(t, 1, st.QueueDepth)
	assert.Equal(t, 1, st.QueueCapacity)
}

func TestSQLiteIndex_WritesTicksSwapsAndSnapshots(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(dbPath)
	require.NoError(t, err)

	require.NoError(t, idx.WriteTick(world.TickLogEntry{
		Tick:    7,
		Joins:   []world.RecordedJoin{{AgentID: "A1", Name: "a", Pos: [2]int{1, 1}}},
		Actions: []world.RecordedAction{{AgentID: "A1", Act: protocol.ActMsg{Type: protocol.TypeAct, Tick: 7}}},
		Swaps: []world.RecordedSwap{
			{AgentID: "A1", BlockerID: "A2", Cell: [2]int{2, 1}, Dir: "LEFT", Code: protocol.MoveOK},
			{AgentID: "A3", BlockerID: "A2", Cell: [2]int{4, 1}, Dir: "RIGHT", Code: protocol.MoveOK},
		},
		Stalls: []string{"A1", "A3"},
		Digest: "d7",
	}))
	require.NoError(t, idx.WriteTick(world.TickLogEntry{
		Tick:   8,
		Swaps:  []world.RecordedSwap{{AgentID: "A2", BlockerID: "A4", Cell: [2]int{3, 1}, Dir: "UP", Code: protocol.MoveOK}},
		Digest: "d8",
	}))
	require.NoError(t, idx.WriteAudit(tlog.ConfigAuditEntry{Tick: 8, Source: "file", StuckLimit: 3, SwapDelay: 5, Accepted: true}))
	idx.RecordSnapshot("/data/8.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "w", Tick: 8},
		Map:    snapshot.MapV1{Rows: []string{"###", "#.#", "###"}},
		Agents: []snapshot.AgentV1{{ID: "A1", Task: &snapshot.TaskV1{TaskID: "T1"}}, {ID: "A2"}},
	})
	// Close drains the queue and commits.
	require.NoError(t, idx.Close())

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var digest string
	var swaps, stalls int
	require.NoError(t, db.QueryRow(`SELECT digest, swaps, stalls FROM ticks WHERE tick=7`).Scan(&digest, &swaps, &stalls))
	assert.Equal(t, "d7", digest)
	assert.Equal(t, 2, swaps)
	assert.Equal(t, 2, stalls)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM swaps`).Scan(&n))
	assert.Equal(t, 3, n)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM config_audit WHERE accepted=1`).Scan(&n))
	assert.Equal(t, 1, n)

	var active, width int
	require.NoError(t, db.QueryRow(`SELECT active_tasks, width FROM snapshots WHERE tick=8`).Scan(&active, &width))
	assert.Equal(t, 1, active)
	assert.Equal(t, 3, width)
}

func TestSQLiteIndex_TopBlockersAndLatestSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(dbPath)
	require.NoError(t, err)
	for tick := uint64(1); tick <= 3; tick++ {
		require.NoError(t, idx.WriteTick(world.TickLogEntry{
			Tick:  tick,
			Swaps: []world.RecordedSwap{{AgentID: "A1", BlockerID: "A2", Dir: "LEFT", Code: "OK"}},
		}))
	}
	require.NoError(t, idx.WriteTick(world.TickLogEntry{
		Tick:  4,
		Swaps: []world.RecordedSwap{{AgentID: "A2", BlockerID: "A1", Dir: "RIGHT", Code: "OK"}},
	}))
	idx.RecordSnapshot("/data/3.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 3}})
	idx.RecordSnapshot("/data/4.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 4}})
	require.NoError(t, idx.Close())

	// Reopen: reads go straight to the database.
	idx, err = OpenSQLite(dbPath)
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	top, err := idx.TopBlockers(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []BlockerCount{{AgentID: "A2", Swaps: 3}, {AgentID: "A1", Swaps: 1}}, top)

	tick, path, err := idx.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), tick)
	assert.Equal(t, "/data/4.snap.zst", path)
}
