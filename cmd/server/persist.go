package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"gridtraffic.ai/internal/persistence/archive"
	"gridtraffic.ai/internal/persistence/indexdb"
	persistlog "gridtraffic.ai/internal/persistence/log"
	"gridtraffic.ai/internal/persistence/snapshot"
	"gridtraffic.ai/internal/sim/world"
	"gridtraffic.ai/internal/transport/admin"
)

type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteTick(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type auditWriter interface {
	WriteAudit(entry persistlog.ConfigAuditEntry) error
}

type multiAuditWriter []auditWriter

func (m multiAuditWriter) WriteAudit(entry persistlog.ConfigAuditEntry) error {
	var first error
	for _, a := range m {
		if a == nil {
			continue
		}
		if err := a.WriteAudit(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// The helpers below keep a nil *SQLiteIndex from turning into a non-nil
// interface value.

func indexTickLogger(idx *indexdb.SQLiteIndex) world.TickLogger {
	if idx == nil {
		return nil
	}
	return idx
}

func indexAuditWriter(idx *indexdb.SQLiteIndex) auditWriter {
	if idx == nil {
		return nil
	}
	return idx
}

func indexReader(idx *indexdb.SQLiteIndex) admin.BlockerIndex {
	if idx == nil {
		return nil
	}
	return idx
}

func runSnapshotWriter(ctx context.Context, worldDir string, ch <-chan snapshot.SnapshotV1, idx *indexdb.SQLiteIndex, retain archive.Policy, log zerolog.Logger) {
	dir := filepath.Join(worldDir, "snapshots")
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := snapshot.Path(dir, snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				log.Error().Err(err).Uint64("tick", snap.Header.Tick).Msg("snapshot write")
				continue
			}
			log.Info().Uint64("tick", snap.Header.Tick).Str("path", path).Msg("snapshot written")
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
			res, err := archive.Apply(worldDir, path, snap, retain)
			if err != nil {
				log.Warn().Err(err).Uint64("tick", snap.Header.Tick).Msg("snapshot retention")
				continue
			}
			if res.Archived != "" {
				log.Info().Str("path", res.Archived).Msg("snapshot archived")
			}
			if len(res.Pruned) > 0 {
				log.Debug().Int("pruned", len(res.Pruned)).Msg("old snapshots pruned")
			}
		}
	}
}

// latestSnapshot returns the highest-tick snapshot under worldDir, or "".
func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
