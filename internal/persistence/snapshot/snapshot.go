package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is the resumable world state. Tracker holds the traffic
// records at export time; only replay restores it, a live resume starts
// with an empty tracker.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate  int `json:"tick_rate_hz"`
	ObsRadius int `json:"obs_radius"`

	// Operational parameters (captured for deterministic replay/resume).
	SnapshotEveryTicks int       `json:"snapshot_every_ticks,omitempty"`
	NoPathFailAfter    int       `json:"no_path_fail_after,omitempty"`
	DefaultReusePath   int       `json:"default_reuse_path,omitempty"`
	PathSearchMaxNodes int       `json:"path_search_max_nodes,omitempty"`
	Traffic            TrafficV1 `json:"traffic"`

	Map    MapV1     `json:"map"`
	Agents []AgentV1 `json:"agents"`

	Tracker []TrackerV1 `json:"tracker,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type TrafficV1 struct {
	StuckLimit uint64 `json:"stuck_limit"`
	SwapDelay  uint64 `json:"swap_delay"`
}

type MapV1 struct {
	Name string   `json:"name"`
	Rows []string `json:"rows"`
}

type AgentV1 struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Pos  [2]int  `json:"pos"`
	Task *TaskV1 `json:"task,omitempty"`
}

// TaskV1 is an active move task with its cached path.
type TaskV1 struct {
	TaskID       string `json:"task_id"`
	Kind         string `json:"kind"`
	Target       [2]int `json:"target"`
	ReusePath    int    `json:"reuse_path,omitempty"`
	IgnoreAgents bool   `json:"ignore_agents"`
	StartPos     [2]int `json:"start_pos"`
	StartedTick  uint64 `json:"started_tick"`
	NoPathStreak int    `json:"no_path_streak,omitempty"`

	Path     [][2]int `json:"path,omitempty"`
	Cursor   int      `json:"cursor,omitempty"`
	PathTick uint64   `json:"path_tick,omitempty"`
}

type TrackerV1 struct {
	AgentID     string `json:"agent_id"`
	Tick        uint64 `json:"tick"`
	Pos         [2]int `json:"pos"`
	SwapPending bool   `json:"swap_pending,omitempty"`
}

type CountersV1 struct {
	NextAgentNum uint64 `json:"next_agent_num"`
	NextTaskNum  uint64 `json:"next_task_num"`
}

// Path returns the canonical snapshot file path for a tick under dir.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Read header line (ignore it for now, gob also contains header).
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot %s: unsupported version %d", path, snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
