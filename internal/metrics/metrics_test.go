package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtraffic.ai/internal/sim/world"
)

var _ world.MetricsSink = (*Metrics)(nil)

func TestMetrics_TrafficCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveVerdict("STALLED")
	m.ObserveVerdict("STALLED")
	m.ObserveVerdict("PROGRESSING")
	m.ObserveResolution("SWAPPED")
	m.ObserveSwapCommand("OK")
	m.ObserveSwapConsumed()
	m.ObserveStep(3*time.Millisecond, 12, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("STALLED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues("SWAPPED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SwapCommandsTotal.WithLabelValues("OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SwapsConsumedTotal))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.Agents))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.TrackedAgents))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveSwapCommand("OK")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `traffic_swap_commands_total{code="OK"} 1`))
	assert.True(t, strings.Contains(string(body), "world_step_duration_seconds"))
}
