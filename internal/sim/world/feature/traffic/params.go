package traffic

import (
	"errors"
	"fmt"
)

const (
	DefaultStuckLimit uint64 = 2
	DefaultSwapDelay  uint64 = 4
)

var ErrInvalidConfig = errors.New("invalid traffic config")

// Config holds the stall thresholds, in ticks.
type Config struct {
	// StuckLimit is how many ticks without progress are tolerated before an
	// agent counts as stalled.
	StuckLimit uint64 `json:"stuck_limit"`
	// SwapDelay is how long a stalled blocker gets to resolve its own
	// obstruction before another stalled agent may swap with it.
	// Larger values make swap chains rarer but lengthen jams.
	SwapDelay uint64 `json:"swap_delay"`
}

func DefaultConfig() Config {
	return Config{StuckLimit: DefaultStuckLimit, SwapDelay: DefaultSwapDelay}
}

func (c *Config) ApplyDefaults() {
	if c.StuckLimit == 0 {
		c.StuckLimit = DefaultStuckLimit
	}
	if c.SwapDelay == 0 {
		c.SwapDelay = DefaultSwapDelay
	}
}

func (c Config) Validate() error {
	if c.SwapDelay <= c.StuckLimit {
		return fmt.Errorf("%w: swap_delay (%d) must exceed stuck_limit (%d)", ErrInvalidConfig, c.SwapDelay, c.StuckLimit)
	}
	return nil
}
