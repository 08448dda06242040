package world

import (
	"github.com/rs/zerolog"

	"gridtraffic.ai/internal/persistence/snapshot"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
func (w *World) SetMetricsSink(s MetricsSink)                  { w.sink = s }
func (w *World) SetLogger(l zerolog.Logger) {
	w.log = l.With().Str("world_id", w.cfg.ID).Logger()
}

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	return w.exportSnapshot(nowTick)
}

// ImportSnapshot replaces the current in-memory world state with the snapshot.
// It sets the world's tick to snapshotTick+1 (the next tick to simulate).
// The tracker starts empty; stalls are re-detected within a few ticks.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	return w.importSnapshot(s, false)
}

// ImportSnapshotForReplay is ImportSnapshot plus the recorded tracker, so
// stall timing continues exactly where the snapshot was taken.
func (w *World) ImportSnapshotForReplay(s snapshot.SnapshotV1) error {
	return w.importSnapshot(s, true)
}

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Attach() chan<- AttachRequest { return w.attach }
func (w *World) Leave() chan<- LeaveRequest   { return w.leave }

// Remove despawns an agent at the next tick boundary.
func (w *World) Remove() chan<- string { return w.remove }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// TrafficConfig returns the active thresholds. Like the other accessors
// below it reads world-loop state and is meant for tests and setup code.
func (w *World) TrafficConfig() traffic.Config { return w.traffic.Config() }

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) Width() int  { return w.grid.Width }
func (w *World) Height() int { return w.grid.Height }
