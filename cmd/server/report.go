package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"gridtraffic.ai/internal/metrics"
	"gridtraffic.ai/internal/persistence/indexdb"
	"gridtraffic.ai/internal/sim/world"
)

var reportParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// reporter periodically logs traffic totals and index backpressure.
type reporter struct {
	cron *cron.Cron

	world   *world.World
	index   *indexdb.SQLiteIndex
	metrics *metrics.Metrics
	log     zerolog.Logger

	last world.TrafficTotals
}

func startReporter(schedule string, w *world.World, idx *indexdb.SQLiteIndex, m *metrics.Metrics, log zerolog.Logger) (*reporter, error) {
	r := &reporter{
		cron:    cron.New(cron.WithParser(reportParser)),
		world:   w,
		index:   idx,
		metrics: m,
		log:     log,
	}
	if schedule == "" {
		return r, nil
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("parse report schedule: %w", err)
	}
	r.cron.Start()
	return r, nil
}

// Stop waits for a running report to finish.
func (r *reporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *reporter) run() {
	wm := r.world.Metrics()
	t := wm.Traffic
	ev := r.log.Info().
		Uint64("tick", wm.Tick).
		Int("agents", wm.Agents).
		Int("clients", wm.Clients).
		Int("active_tasks", wm.ActiveTasks).
		Int("tracked", wm.TrackedAgents).
		Uint64("stalls", t.Stalls-r.last.Stalls).
		Uint64("waits", t.Waits-r.last.Waits).
		Uint64("swaps", t.Swaps-r.last.Swaps).
		Uint64("swaps_consumed", t.SwapsConsumed-r.last.SwapsConsumed).
		Uint64("arrivals", t.Arrivals-r.last.Arrivals).
		Float64("step_ms", wm.StepMS)
	r.last = t

	if r.index != nil {
		s := r.index.Stats()
		drops := s.DropTickTotal + s.DropSnapshotTotal + s.DropAuditTotal
		r.metrics.IndexDropTotal.Set(float64(drops))
		ev = ev.Int("index_queue", s.QueueDepth).Uint64("index_drops", drops)
	}
	ev.Msg("traffic report")
}
