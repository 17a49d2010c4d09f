package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteI64(h, &tmp, w.tune.Seed)
	digestWriteU64(h, &tmp, w.spawnSeq)
	digestWriteU64(h, &tmp, w.injectRate.Start)
	digestWriteI64(h, &tmp, int64(w.injectRate.Count))

	// Occupancy table (sorted).
	entries := w.table.Entries()
	digestWriteU64(h, &tmp, uint64(len(entries)))
	for _, e := range entries {
		digestWriteI64(h, &tmp, int64(e.Cell.R))
		digestWriteI64(h, &tmp, int64(e.Cell.H))
		digestWriteI64(h, &tmp, int64(e.Cell.A))
		h.Write([]byte(e.ID))
	}

	// Falling bodies (spawn order is part of the state).
	digestWriteU64(h, &tmp, uint64(len(w.active)))
	for _, b := range w.active {
		h.Write([]byte(b.ID))
		digestWriteI64(h, &tmp, int64(b.R))
		digestWriteI64(h, &tmp, int64(b.A))
		digestWriteU64(h, &tmp, math.Float64bits(b.Height))
		digestWriteU64(h, &tmp, uint64(w.conflicts[b.ID]))
	}

	digestWriteU64(h, &tmp, w.stats.Rejected)
	digestWriteU64(h, &tmp, w.stats.Refused)

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
