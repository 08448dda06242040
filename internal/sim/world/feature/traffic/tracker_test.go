package traffic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerCRUD(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.Get("A1")
	assert.False(t, ok)

	tr.Set("A2", Record{Tick: 3, X: 1, Y: 1})
	tr.Set("A1", Record{Tick: 5, X: 2, Y: 4, SwapPending: true})
	require.Equal(t, 2, tr.Len())

	got, ok := tr.Get("A1")
	require.True(t, ok)
	assert.Equal(t, Record{Tick: 5, X: 2, Y: 4, SwapPending: true}, got)

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "A1", entries[0].AgentID)
	assert.Equal(t, "A2", entries[1].AgentID)

	tr.Remove("A1")
	_, ok = tr.Get("A1")
	assert.False(t, ok)
	tr.Remove("missing")

	tr.Reset()
	assert.Zero(t, tr.Len())
	assert.Nil(t, tr.Entries())
}

func TestTrackerZeroValueAndNil(t *testing.T) {
	var tr Tracker
	tr.Set("A1", Record{Tick: 1})
	assert.Equal(t, 1, tr.Len())

	var nilTracker *Tracker
	_, ok := nilTracker.Get("A1")
	assert.False(t, ok)
	assert.Zero(t, nilTracker.Len())
	nilTracker.Remove("A1")
	nilTracker.Set("A1", Record{Tick: 2})
	nilTracker.Reset()
	assert.Nil(t, nilTracker.Entries())
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	assert.Equal(t, DefaultConfig(), c)
	require.NoError(t, c.Validate())

	bad := Config{StuckLimit: 4, SwapDelay: 4}
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
