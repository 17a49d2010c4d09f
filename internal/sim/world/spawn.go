package world

import (
	"errors"
	"math"

	"polardrop.dev/internal/protocol"
	"polardrop.dev/internal/sim/grid"
	"polardrop.dev/internal/sim/occupancy"
	"polardrop.dev/internal/sim/world/logic/ids"
	"polardrop.dev/internal/sim/world/logic/mathx"
)

// Hash salts for spawn sequence draws.
const (
	saltAngle = 0
	saltColor = 1
)

// timerSpawnPos picks the next ring position for the periodic spawner.
func (w *World) timerSpawnPos(seq uint64) (x, z float64) {
	angle := 2 * math.Pi * mathx.Unit01(mathx.Hash2(w.tune.Seed, int(seq), saltAngle))
	r := w.tune.SpawnRadius
	return r * math.Cos(angle), r * math.Sin(angle)
}

func (w *World) pickColor(seq uint64) string {
	p := w.tune.Palette
	return p[mathx.Hash2(w.tune.Seed, int(seq), saltColor)%uint64(len(p))]
}

// spawnAt places a new falling body above the cell nearest (x, z).
// On refusal it returns a protocol reason code.
func (w *World) spawnAt(x, z float64) (SpawnRecord, string) {
	seq := w.spawnSeq
	w.spawnSeq++

	if w.tune.MaxBodies > 0 && len(w.active)+int(w.stats.Settled) >= w.tune.MaxBodies {
		return SpawnRecord{}, protocol.ReasonCapReached
	}

	s, err := w.index.Snap(x, z)
	if err != nil {
		if !errors.Is(err, grid.ErrOutOfBounds) {
			w.logf("spawn (%v,%v): %v", x, z, err)
		}
		return SpawnRecord{}, protocol.ReasonOutOfBounds
	}

	layer := w.tune.StartLayer()
	if w.table.ColumnHeight(occupancy.Column{R: s.Radial, A: s.Angular}) > layer {
		return SpawnRecord{}, protocol.ReasonColumnFull
	}
	for _, b := range w.active {
		if b.R == s.Radial && b.A == s.Angular && w.tracker.HeightIndex(b.Height) == layer {
			return SpawnRecord{}, protocol.ReasonCellBusy
		}
	}

	b := &occupancy.Body{
		ID:     ids.BodyID(seq),
		R:      s.Radial,
		A:      s.Angular,
		X:      s.X,
		Z:      s.Z,
		Height: w.tune.StartHeight,
		Color:  w.pickColor(seq),
	}
	w.active = append(w.active, b)
	w.stats.Spawned++
	return SpawnRecord{
		ID:      b.ID,
		R:       b.R,
		A:       b.A,
		X:       b.X,
		Z:       b.Z,
		Color:   b.Color,
		Clamped: s.Clamped,
	}, ""
}
