package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtraffic.ai/internal/sim/world"
)

func TestTickLogger_RotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	require.NoError(t, l.WriteTick(world.TickLogEntry{Tick: 1, Digest: "a"}))
	require.NoError(t, l.WriteTick(world.TickLogEntry{
		Tick:   2,
		Stalls: []string{"A1"},
		Swaps:  []world.RecordedSwap{{AgentID: "A1", BlockerID: "A2", Cell: [2]int{2, 1}, Dir: "LEFT", Code: "OK"}},
		Digest: "b",
	}))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, l.WriteTick(world.TickLogEntry{Tick: 3, Digest: "c"}))
	require.NoError(t, l.Close())

	files, err := TickFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "events-2026-03-01-10.jsonl.zst", filepath.Base(files[0]))
	assert.Equal(t, "events-2026-03-01-11.jsonl.zst", filepath.Base(files[1]))

	var got []world.TickLogEntry
	for _, f := range files {
		require.NoError(t, ReadTicks(f, func(e world.TickLogEntry) error {
			got = append(got, e)
			return nil
		}))
	}
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{got[0].Tick, got[1].Tick, got[2].Tick})
	require.Len(t, got[1].Swaps, 1)
	assert.Equal(t, "A2", got[1].Swaps[0].BlockerID)
	assert.Equal(t, []string{"A1"}, got[1].Stalls)
}

func TestReadTicks_StopsOnEOF(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	l.w.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, l.WriteTick(world.TickLogEntry{Tick: i}))
	}
	require.NoError(t, l.Close())

	files, err := TickFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	n := 0
	require.NoError(t, ReadTicks(files[0], func(world.TickLogEntry) error {
		n++
		if n == 2 {
			return io.EOF
		}
		return nil
	}))
	assert.Equal(t, 2, n)
}
