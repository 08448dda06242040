package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// stateDigest hashes the simulated state: map, agents and tasks. Traffic
// tracker state is excluded, so a live resume with an empty tracker
// digests the same as the world that wrote the snapshot.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	h.Write([]byte(w.cfg.ID))
	digestWriteU64(h, &tmp, uint64(w.grid.Width))
	digestWriteU64(h, &tmp, uint64(w.grid.Height))
	for _, row := range w.grid.Rows() {
		h.Write([]byte(row))
	}

	for _, a := range w.sortedAgents() {
		h.Write([]byte(a.ID))
		digestWriteI64(h, &tmp, int64(a.Pos.X))
		digestWriteI64(h, &tmp, int64(a.Pos.Y))
		mt := a.MoveTask
		if mt == nil {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		h.Write([]byte(mt.TaskID))
		digestWriteI64(h, &tmp, int64(mt.Target.X))
		digestWriteI64(h, &tmp, int64(mt.Target.Y))
		digestWriteI64(h, &tmp, int64(mt.NoPathStreak))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}
