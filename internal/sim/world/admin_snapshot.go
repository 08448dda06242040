package world

import (
	"context"
	"errors"
)

var (
	ErrNoSnapshotSink   = errors.New("snapshot sink not configured")
	ErrSnapshotBusy     = errors.New("snapshot sink backpressure")
	errAdminUnavailable = errors.New("admin snapshot not available")
)

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  error
}

// RequestSnapshot asks the world loop to export the last completed tick to
// the snapshot sink. Safe to call from HTTP handlers.
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if w == nil || w.admin == nil {
		return 0, errAdminUnavailable
	}
	resp := make(chan adminSnapshotResp, 1)

	select {
	case w.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-resp:
		return r.Tick, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// handleAdminSnapshotRequests answers every pending request with one
// shared export, taken after the tick that just ran.
func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	snapTick := w.lastTick()

	var err error
	if w.snapshotSink == nil {
		err = ErrNoSnapshotSink
	} else {
		select {
		case w.snapshotSink <- w.exportSnapshot(snapTick):
			w.log.Info().Uint64("tick", snapTick).Int("requests", len(reqs)).Msg("admin snapshot queued")
		default:
			err = ErrSnapshotBusy
		}
	}

	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- adminSnapshotResp{Tick: snapTick, Err: err}:
		default:
			// Client timed out; don't block the sim loop.
		}
	}
}
