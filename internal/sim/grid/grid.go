// Package grid maps continuous floor positions onto a polar grid of rings
// (radial index) and sectors (angular index).
package grid

import (
	"errors"
	"fmt"
	"math"

	"polardrop.dev/internal/sim/world/logic/mathx"
)

var ErrOutOfBounds = errors.New("grid: position outside radial bound")

type BoundsPolicy string

const (
	BoundsReject BoundsPolicy = "reject"
	BoundsClamp  BoundsPolicy = "clamp"
)

type Config struct {
	UnitSize    float64
	Sectors     int
	RadialCells int // highest valid radial index
	Bounds      BoundsPolicy
}

// Snapped is a position quantized onto the grid.
// Angular is meaningless at Radial 0 and is always reported as 0 there.
type Snapped struct {
	X, Z    float64
	Radial  int
	Angular int
	Clamped bool
}

// ArrayIndex returns the radial index shifted into a dense array centred at gridSize/2.
func (s Snapped) ArrayIndex(gridSize int) int {
	return s.Radial + gridSize/2
}

type Indexer struct {
	cfg  Config
	step float64
}

func NewIndexer(cfg Config) (*Indexer, error) {
	if !(cfg.UnitSize > 0) || math.IsInf(cfg.UnitSize, 0) {
		return nil, fmt.Errorf("grid: unit size must be positive, got %v", cfg.UnitSize)
	}
	if cfg.Sectors <= 0 {
		return nil, fmt.Errorf("grid: sectors must be positive, got %d", cfg.Sectors)
	}
	if cfg.RadialCells < 0 {
		return nil, fmt.Errorf("grid: radial cells must be non-negative, got %d", cfg.RadialCells)
	}
	switch cfg.Bounds {
	case "":
		cfg.Bounds = BoundsReject
	case BoundsReject, BoundsClamp:
	default:
		return nil, fmt.Errorf("grid: unknown bounds policy %q", cfg.Bounds)
	}
	return &Indexer{cfg: cfg, step: 2 * math.Pi / float64(cfg.Sectors)}, nil
}

func (ix *Indexer) Config() Config { return ix.cfg }

// SectorAngle is the angular width of one sector in radians.
func (ix *Indexer) SectorAngle() float64 { return ix.step }

// Snap quantizes (x, z) to the nearest ring and sector.
func (ix *Indexer) Snap(x, z float64) (Snapped, error) {
	if math.IsNaN(x) || math.IsNaN(z) || math.IsInf(x, 0) || math.IsInf(z, 0) {
		return Snapped{}, fmt.Errorf("grid: non-finite position (%v, %v)", x, z)
	}
	radius := math.Hypot(x, z)
	angle := math.Atan2(z, x)

	r := mathx.RoundIndex(radius, ix.cfg.UnitSize)
	a := mathx.Mod(mathx.RoundIndex(angle, ix.step), ix.cfg.Sectors)

	clamped := false
	if r > ix.cfg.RadialCells {
		if ix.cfg.Bounds != BoundsClamp {
			return Snapped{}, fmt.Errorf("%w: radial index %d > %d", ErrOutOfBounds, r, ix.cfg.RadialCells)
		}
		r = ix.cfg.RadialCells
		clamped = true
	}
	return ix.At(r, a, clamped), nil
}

// At returns the snapped position of cell (radial, angular).
func (ix *Indexer) At(radial, angular int, clamped bool) Snapped {
	if radial == 0 {
		return Snapped{Clamped: clamped}
	}
	angular = mathx.Mod(angular, ix.cfg.Sectors)
	sr := float64(radial) * ix.cfg.UnitSize
	sa := float64(angular) * ix.step
	return Snapped{
		X:       sr * math.Cos(sa),
		Z:       sr * math.Sin(sa),
		Radial:  radial,
		Angular: angular,
		Clamped: clamped,
	}
}
