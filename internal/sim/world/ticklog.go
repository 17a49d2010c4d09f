package world

import (
	"polardrop.dev/internal/sim/occupancy"
	"polardrop.dev/internal/sim/tuning"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry is everything needed to re-run one tick and check the result.
// Timer spawns are derived from the seed, so only injected spawns are inputs;
// Spawns, Landings and Rejections are outputs kept for indexing.
type TickLogEntry struct {
	Tick       uint64            `json:"tick"`
	Run        *RunHeader        `json:"run,omitempty"`
	Injected   []InjectedSpawn   `json:"injected,omitempty"`
	Spawns     []SpawnRecord     `json:"spawns,omitempty"`
	Landings   []LandingRecord   `json:"landings,omitempty"`
	Rejections []RejectionRecord `json:"rejections,omitempty"`
	Digest     string            `json:"digest"`
}

// RunHeader is attached to the tick 0 entry.
type RunHeader struct {
	WorldID string        `json:"world_id"`
	RunID   string        `json:"run_id,omitempty"`
	Tuning  tuning.Tuning `json:"tuning"`
}

type InjectedSpawn struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

type SpawnRecord struct {
	ID      string  `json:"id"`
	R       int     `json:"r"`
	A       int     `json:"a"`
	X       float64 `json:"x"`
	Z       float64 `json:"z"`
	Color   string  `json:"color"`
	Clamped bool    `json:"clamped,omitempty"`
}

type LandingRecord struct {
	ID     string         `json:"id"`
	Cell   occupancy.Cell `json:"cell"`
	Height float64        `json:"height"`
}

type RejectionRecord struct {
	ID     string  `json:"id,omitempty"`
	Reason string  `json:"reason"`
	X      float64 `json:"x"`
	Z      float64 `json:"z"`
}
