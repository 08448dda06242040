package world

import (
	"gridtraffic.ai/internal/sim/gridmap"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	// ObsRadius bounds the nearby-agent list in OBS (Chebyshev distance).
	ObsRadius int

	// Operational parameters. These are included in snapshots for deterministic replay/resume.
	SnapshotEveryTicks int
	NoPathFailAfter    int
	DefaultReusePath   int
	PathSearchMaxNodes int

	// DespawnOnLeave removes an agent from the grid when its client disconnects.
	// Otherwise the agent stays in place and can be resumed with its token.
	DespawnOnLeave bool

	Traffic traffic.Config

	// Map is the static terrain. A zero map falls back to an open 32x32 grid.
	Map gridmap.Map
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "GRID"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.ObsRadius <= 0 {
		c.ObsRadius = 8
	}
	if c.SnapshotEveryTicks <= 0 {
		c.SnapshotEveryTicks = 3000
	}
	if c.NoPathFailAfter <= 0 {
		c.NoPathFailAfter = 10
	}
	if c.DefaultReusePath <= 0 {
		c.DefaultReusePath = 5
	}
	if c.PathSearchMaxNodes <= 0 {
		c.PathSearchMaxNodes = 4096
	}
	c.Traffic.ApplyDefaults()
	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		c.Map = gridmap.Open(32, 32)
	}
}
