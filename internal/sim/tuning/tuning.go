package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	NoPathFailAfter    int `yaml:"no_path_fail_after" json:"no_path_fail_after"`
	DefaultReusePath   int `yaml:"default_reuse_path" json:"default_reuse_path"`
	PathSearchMaxNodes int `yaml:"path_search_max_nodes" json:"path_search_max_nodes"`

	// Snapshot retention: newest N kept on disk, every Kth tick archived.
	SnapshotKeep              int    `yaml:"snapshot_keep" json:"snapshot_keep"`
	SnapshotArchiveEveryTicks uint64 `yaml:"snapshot_archive_every_ticks" json:"snapshot_archive_every_ticks"`

	Traffic Traffic `yaml:"traffic" json:"traffic"`

	ReportSchedule string `yaml:"report_schedule" json:"report_schedule"`
}

type Traffic struct {
	StuckLimit uint64 `yaml:"stuck_limit" json:"stuck_limit"`
	SwapDelay  uint64 `yaml:"swap_delay" json:"swap_delay"`
}

func (t Traffic) Config() traffic.Config {
	return traffic.Config{StuckLimit: t.StuckLimit, SwapDelay: t.SwapDelay}
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:           "1.0",
		TickRateHz:                5,
		SnapshotEveryTicks:        3000,
		NoPathFailAfter:           10,
		DefaultReusePath:          5,
		PathSearchMaxNodes:        4096,
		SnapshotKeep:              10,
		SnapshotArchiveEveryTicks: 30000,
		Traffic: Traffic{
			StuckLimit: traffic.DefaultStuckLimit,
			SwapDelay:  traffic.DefaultSwapDelay,
		},
		ReportSchedule: "@every 1m",
	}
}

// Load reads a tuning file. Missing keys keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be positive"))
	}
	if t.NoPathFailAfter < 0 {
		errs = append(errs, fmt.Errorf("no_path_fail_after must not be negative"))
	}
	if t.SnapshotKeep < 0 {
		errs = append(errs, fmt.Errorf("snapshot_keep must not be negative"))
	}
	if err := t.Traffic.Config().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
