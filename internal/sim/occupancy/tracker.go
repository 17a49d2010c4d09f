package occupancy

import (
	"fmt"

	"polardrop.dev/internal/sim/world/logic/mathx"
)

type Status int

const (
	StatusFalling Status = iota
	StatusSettled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusFalling:
		return "FALLING"
	case StatusSettled:
		return "SETTLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Body is a dropped block. R and A are fixed at spawn; Height is lowered by
// the caller between steps.
type Body struct {
	ID     string
	R, A   int
	X, Z   float64
	Height float64
	Color  string
	Status Status

	// Cell is valid once Status is StatusSettled.
	Cell Cell
}

type Result int

const (
	Falling Result = iota
	Settled
	Conflict
	OutOfBounds
	Rejected
)

func (r Result) String() string {
	switch r {
	case Falling:
		return "FALLING"
	case Settled:
		return "SETTLED"
	case Conflict:
		return "CONFLICT"
	case OutOfBounds:
		return "OUT_OF_BOUNDS"
	case Rejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

type Tracker struct {
	UnitSize    float64
	HeightCells int // layers 0..HeightCells-1 are valid
}

func NewTracker(unit float64, heightCells int) (*Tracker, error) {
	if !(unit > 0) {
		return nil, fmt.Errorf("occupancy: unit size must be positive, got %v", unit)
	}
	if heightCells <= 0 {
		return nil, fmt.Errorf("occupancy: height cells must be positive, got %d", heightCells)
	}
	return &Tracker{UnitSize: unit, HeightCells: heightCells}, nil
}

// HeightIndex quantizes a height to a layer, treating anything below the floor as layer 0.
func (t *Tracker) HeightIndex(height float64) int {
	h := mathx.RoundIndex(height, t.UnitSize)
	if h < 0 {
		return 0
	}
	return h
}

// Probe reports whether b would land at its current height, and where.
// It does not modify b or tab.
func (t *Tracker) Probe(b *Body, tab *Table) (Cell, bool) {
	c := Cell{R: b.R, H: t.HeightIndex(b.Height), A: b.A}
	if c.H <= 0 || tab.Occupied(c.Below()) {
		return c, true
	}
	return c, false
}

// Step evaluates b for one tick and commits a landing into tab.
// Bodies that are no longer falling are left untouched.
func (t *Tracker) Step(b *Body, tab *Table) Result {
	switch b.Status {
	case StatusSettled:
		return Settled
	case StatusRejected:
		return Rejected
	}
	c, land := t.Probe(b, tab)
	if !land {
		return Falling
	}
	if c.H >= t.HeightCells {
		return OutOfBounds
	}
	if err := tab.Insert(c, b.ID); err != nil {
		return Conflict
	}
	b.Height = float64(c.H) * t.UnitSize
	b.Cell = c
	b.Status = StatusSettled
	return Settled
}
