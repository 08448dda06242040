package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gridtraffic.ai/internal/persistence/snapshot"
)

// Policy controls what happens to older snapshots after a new one lands.
type Policy struct {
	// Keep is how many of the newest snapshots stay in snapshots/ (0 = all).
	Keep int
	// ArchiveEveryTicks copies snapshots whose tick is a multiple of this
	// value into archives/ before they can be pruned (0 = never).
	ArchiveEveryTicks uint64
}

type ArchiveMeta struct {
	Tick      uint64 `json:"tick"`
	WorldID   string `json:"world_id"`
	Snapshot  string `json:"snapshot"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Agents    int    `json:"agents"`
	CreatedAt string `json:"created_at"`
}

// Result lists the files an Apply call touched.
type Result struct {
	Archived string
	Pruned   []string
}

// Apply archives the just-written snapshot if its tick is due, then prunes
// snapshots/ down to the newest p.Keep files.
func Apply(worldDir, snapshotPath string, snap snapshot.SnapshotV1, p Policy) (Result, error) {
	var res Result
	if p.ArchiveEveryTicks > 0 && snap.Header.Tick%p.ArchiveEveryTicks == 0 {
		dst, err := archiveSnapshot(worldDir, snapshotPath, snap)
		if err != nil {
			return res, err
		}
		res.Archived = dst
	}
	if p.Keep <= 0 {
		return res, nil
	}
	pruned, err := prune(filepath.Join(worldDir, "snapshots"), p.Keep)
	res.Pruned = pruned
	return res, err
}

// archiveSnapshot copies a snapshot into `worldDir/archives/tick_<N>/`.
func archiveSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (string, error) {
	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("tick_%d", snap.Header.Tick))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	width := 0
	if len(snap.Map.Rows) > 0 {
		width = len(snap.Map.Rows[0])
	}
	meta := ArchiveMeta{
		Tick:      snap.Header.Tick,
		WorldID:   snap.Header.WorldID,
		Snapshot:  filepath.Base(dst),
		Width:     width,
		Height:    len(snap.Map.Rows),
		Agents:    len(snap.Agents),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}
	return dst, nil
}

// prune removes all but the newest keep snapshots, ordered by tick.
func prune(dir string, keep int) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type snapFile struct {
		tick uint64
		path string
	}
	var files []snapFile
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, snapFile{tick: tick, path: filepath.Join(dir, name)})
	}
	if len(files) <= keep {
		return nil, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].tick > files[j].tick })

	var pruned []string
	for _, f := range files[keep:] {
		if err := os.Remove(f.path); err != nil {
			return pruned, err
		}
		pruned = append(pruned, f.path)
	}
	return pruned, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
