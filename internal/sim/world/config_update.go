package world

import (
	"context"
	"errors"

	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

// ConfigUpdate carries live-tunable parameters. Zero integer fields keep
// the current value.
type ConfigUpdate struct {
	Traffic            traffic.Config `json:"traffic"`
	NoPathFailAfter    int            `json:"no_path_fail_after,omitempty"`
	DefaultReusePath   int            `json:"default_reuse_path,omitempty"`
	PathSearchMaxNodes int            `json:"path_search_max_nodes,omitempty"`
}

type configUpdateReq struct {
	Update ConfigUpdate
	Resp   chan error
}

// UpdateConfig queues a parameter change for the next tick boundary and
// waits until it has been applied or rejected.
func (w *World) UpdateConfig(ctx context.Context, u ConfigUpdate) error {
	if w == nil || w.configUpdate == nil {
		return errors.New("config update not available")
	}
	req := configUpdateReq{Update: u, Resp: make(chan error, 1)}
	select {
	case w.configUpdate <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.Resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyConfig applies an update immediately. Like ImportSnapshot it must
// only be called when the loop is not running.
func (w *World) ApplyConfig(u ConfigUpdate) error {
	return w.applyConfig(u)
}

func (w *World) applyConfigUpdate(req configUpdateReq) error {
	err := w.applyConfig(req.Update)
	if req.Resp != nil {
		select {
		case req.Resp <- err:
		default:
		}
	}
	return err
}

func (w *World) applyConfig(u ConfigUpdate) error {
	tc := u.Traffic
	cur := w.traffic.Config()
	if tc.StuckLimit == 0 {
		tc.StuckLimit = cur.StuckLimit
	}
	if tc.SwapDelay == 0 {
		tc.SwapDelay = cur.SwapDelay
	}
	if err := w.traffic.SetConfig(tc); err != nil {
		w.log.Warn().Err(err).Msg("config update rejected")
		return err
	}
	w.cfg.Traffic = w.traffic.Config()
	if u.NoPathFailAfter > 0 {
		w.cfg.NoPathFailAfter = u.NoPathFailAfter
	}
	if u.DefaultReusePath > 0 {
		w.cfg.DefaultReusePath = u.DefaultReusePath
	}
	if u.PathSearchMaxNodes > 0 {
		w.cfg.PathSearchMaxNodes = u.PathSearchMaxNodes
	}
	w.log.Info().
		Uint64("stuck_limit", w.cfg.Traffic.StuckLimit).
		Uint64("swap_delay", w.cfg.Traffic.SwapDelay).
		Int("no_path_fail_after", w.cfg.NoPathFailAfter).
		Msg("config updated")
	return nil
}
