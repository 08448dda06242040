package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	writeFile(t, p, "traffic:\n  stuck_limit: 3\n  swap_delay: 7\n")

	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 5, got.TickRateHz)
	assert.Equal(t, traffic.Config{StuckLimit: 3, SwapDelay: 7}, got.Traffic.Config())
}

func TestLoadRejectsInvalidTraffic(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	writeFile(t, p, "traffic:\n  stuck_limit: 4\n  swap_delay: 2\n")

	_, err := Load(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, traffic.ErrInvalidConfig))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestRepoTuningFileLoads(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	require.NoError(t, err)
	assert.Equal(t, traffic.DefaultConfig(), got.Traffic.Config())
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	writeFile(t, p, "traffic:\n  stuck_limit: 2\n  swap_delay: 4\n")

	got := make(chan Tuning, 4)
	w, err := Watch(p, zerolog.Nop(), func(t Tuning) { got <- t })
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, p, "traffic:\n  stuck_limit: 3\n  swap_delay: 9\n")

	select {
	case tu := <-got:
		assert.Equal(t, uint64(9), tu.Traffic.SwapDelay)
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload observed")
	}
}
