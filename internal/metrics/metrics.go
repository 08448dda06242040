package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the traffic engine and the
// world loop. It satisfies world.MetricsSink.
type Metrics struct {
	registry *prometheus.Registry

	VerdictsTotal      *prometheus.CounterVec
	ResolutionsTotal   *prometheus.CounterVec
	SwapCommandsTotal  *prometheus.CounterVec
	SwapsConsumedTotal prometheus.Counter

	TrackedAgents prometheus.Gauge
	Agents        prometheus.Gauge
	StepDuration  prometheus.Histogram

	Sessions       prometheus.Gauge
	SessionsTotal  prometheus.Counter
	RejectedTotal  *prometheus.CounterVec
	TuningReloads  *prometheus.CounterVec
	IndexDropTotal prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_verdicts_total",
				Help: "Progress detector verdicts by kind",
			},
			[]string{"verdict"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_resolutions_total",
				Help: "Obstruction resolver outcomes for stalled agents",
			},
			[]string{"outcome"},
		),
		SwapCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traffic_swap_commands_total",
				Help: "Commanded swap moves by result code",
			},
			[]string{"code"},
		),
		SwapsConsumedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "traffic_swaps_consumed_total",
				Help: "Turns forfeited by agents that were swapped out of the way",
			},
		),
		TrackedAgents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "traffic_tracked_agents",
				Help: "Agents with a position tracker record",
			},
		),
		Agents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "world_agents",
				Help: "Agents present in the world",
			},
		),
		StepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "world_step_duration_seconds",
				Help:    "Wall time of one world tick",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
		Sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ws_sessions_active",
				Help: "Connected agent websocket sessions",
			},
		),
		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ws_sessions_total",
				Help: "Agent websocket sessions accepted",
			},
		),
		RejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_messages_rejected_total",
				Help: "Inbound messages rejected by error code",
			},
			[]string{"code"},
		),
		TuningReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tuning_reloads_total",
				Help: "Tuning file reloads by result",
			},
			[]string{"result"},
		),
		IndexDropTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexdb_dropped_total",
				Help: "Index writes dropped on backpressure",
			},
		),
	}

	registry.MustRegister(
		m.VerdictsTotal,
		m.ResolutionsTotal,
		m.SwapCommandsTotal,
		m.SwapsConsumedTotal,
		m.TrackedAgents,
		m.Agents,
		m.StepDuration,
		m.Sessions,
		m.SessionsTotal,
		m.RejectedTotal,
		m.TuningReloads,
		m.IndexDropTotal,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveVerdict(verdict string) {
	m.VerdictsTotal.WithLabelValues(verdict).Inc()
}

func (m *Metrics) ObserveResolution(outcome string) {
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSwapCommand(code string) {
	m.SwapCommandsTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveSwapConsumed() { m.SwapsConsumedTotal.Inc() }

func (m *Metrics) ObserveStep(d time.Duration, agents, tracked int) {
	m.StepDuration.Observe(d.Seconds())
	m.Agents.Set(float64(agents))
	m.TrackedAgents.Set(float64(tracked))
}
