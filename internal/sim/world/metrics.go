package world

import "gridtraffic.ai/internal/sim/world/feature/traffic"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Agents        int `json:"agents"`
	Clients       int `json:"clients"`
	ActiveTasks   int `json:"active_tasks"`
	TrackedAgents int `json:"tracked_agents"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Traffic       TrafficTotals  `json:"traffic"`
	TrafficConfig traffic.Config `json:"traffic_config"`
}

type QueueDepths struct {
	Inbox  int `json:"inbox"`
	Join   int `json:"join"`
	Leave  int `json:"leave"`
	Attach int `json:"attach"`
}

// TrafficTotals are cumulative engine decision counts since process start.
type TrafficTotals struct {
	Stalls        uint64 `json:"stalls"`
	Waits         uint64 `json:"waits"`
	Swaps         uint64 `json:"swaps"`
	SwapsConsumed uint64 `json:"swaps_consumed"`
	Arrivals      uint64 `json:"arrivals"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
