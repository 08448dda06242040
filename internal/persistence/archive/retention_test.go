package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtraffic.ai/internal/persistence/snapshot"
)

func writeDummy(t *testing.T, worldDir string, tick uint64) string {
	t.Helper()
	p := snapshot.Path(filepath.Join(worldDir, "snapshots"), tick)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("dummy"), 0o644))
	return p
}

func TestApply_ArchivesDueSnapshot(t *testing.T) {
	worldDir := t.TempDir()
	src := writeDummy(t, worldDir, 6000)
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "w1", Tick: 6000},
		Map:    snapshot.MapV1{Rows: []string{"####", "#..#", "####"}},
		Agents: []snapshot.AgentV1{{ID: "A1"}},
	}

	res, err := Apply(worldDir, src, snap, Policy{ArchiveEveryTicks: 3000})
	require.NoError(t, err)
	require.NotEmpty(t, res.Archived)

	got, err := os.ReadFile(res.Archived)
	require.NoError(t, err)
	assert.Equal(t, "dummy", string(got))
	assert.FileExists(t, filepath.Join(filepath.Dir(res.Archived), "meta.json"))

	res, err = Apply(worldDir, writeDummy(t, worldDir, 6500), snapshot.SnapshotV1{Header: snapshot.Header{Tick: 6500}}, Policy{ArchiveEveryTicks: 3000})
	require.NoError(t, err)
	assert.Empty(t, res.Archived)
}

func TestApply_PrunesOldest(t *testing.T) {
	worldDir := t.TempDir()
	for _, tick := range []uint64{100, 900, 300, 1200} {
		writeDummy(t, worldDir, tick)
	}
	latest := snapshot.Path(filepath.Join(worldDir, "snapshots"), 1200)

	res, err := Apply(worldDir, latest, snapshot.SnapshotV1{Header: snapshot.Header{Tick: 1200}}, Policy{Keep: 2})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		snapshot.Path(filepath.Join(worldDir, "snapshots"), 300),
		snapshot.Path(filepath.Join(worldDir, "snapshots"), 100),
	}, res.Pruned)
	assert.FileExists(t, latest)
	assert.FileExists(t, snapshot.Path(filepath.Join(worldDir, "snapshots"), 900))
}
