package tuning

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"polardrop.dev/internal/protocol"
)

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz" json:"tick_rate_hz"`

	// Grid.
	UnitSize     float64 `yaml:"unit_size" json:"unit_size"`
	Sectors      int     `yaml:"sectors" json:"sectors"`
	RadialCells  int     `yaml:"radial_cells" json:"radial_cells"`
	HeightCells  int     `yaml:"height_cells" json:"height_cells"`
	BoundsPolicy string  `yaml:"bounds_policy" json:"bounds_policy"`

	// Spawner.
	SpawnRadius     float64  `yaml:"spawn_radius" json:"spawn_radius"`
	SpawnEveryTicks int      `yaml:"spawn_every_ticks" json:"spawn_every_ticks"`
	StartHeight     float64  `yaml:"start_height" json:"start_height"`
	FallStep        float64  `yaml:"fall_step" json:"fall_step"`
	MaxBodies       int      `yaml:"max_bodies" json:"max_bodies"`
	Palette         []string `yaml:"palette" json:"palette"`

	ConflictRetryTicks int `yaml:"conflict_retry_ticks" json:"conflict_retry_ticks"`

	// Injected spawns.
	InjectWindowTicks int `yaml:"inject_window_ticks" json:"inject_window_ticks"`
	InjectMax         int `yaml:"inject_max" json:"inject_max"`

	Seed int64 `yaml:"seed" json:"seed"`
}

// Defaults mirrors configs/tuning.yaml.
func Defaults() Tuning {
	return Tuning{
		TickRateHz:         60,
		UnitSize:           0.25,
		Sectors:            16,
		RadialCells:        18,
		HeightCells:        36,
		BoundsPolicy:       "reject",
		SpawnRadius:        1.1,
		SpawnEveryTicks:    60,
		StartHeight:        2,
		FallStep:           0.01,
		MaxBodies:          2048,
		Palette:            []string{"#ADD8E6", "#90EE90", "#FFD700", "#FF6347"},
		ConflictRetryTicks: 30,
		InjectWindowTicks:  60,
		InjectMax:          8,
		Seed:               1337,
	}
}

// Load reads a tuning file on top of Defaults, so a file may set only the
// fields it cares about.
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

// Validate checks the document shape against the tuning schema and then the
// cross-field constraints the schema cannot express.
func (t Tuning) Validate() error {
	if err := protocol.Validate(protocol.SchemaTuning, t); err != nil {
		return err
	}
	if math.IsInf(t.UnitSize, 0) || math.IsNaN(t.UnitSize) {
		return fmt.Errorf("unit_size must be finite")
	}
	if t.FallStep >= t.UnitSize {
		// A larger step could skip a whole layer between two probes.
		return fmt.Errorf("fall_step (%v) must be smaller than unit_size (%v)", t.FallStep, t.UnitSize)
	}
	if idx := int(math.Round(t.StartHeight / t.UnitSize)); idx >= t.HeightCells {
		return fmt.Errorf("start_height %v is layer %d, above height_cells %d", t.StartHeight, idx, t.HeightCells)
	}
	if len(t.Palette) == 0 {
		return fmt.Errorf("palette must not be empty")
	}
	return nil
}

// StartLayer is the layer index bodies spawn in.
func (t Tuning) StartLayer() int {
	return int(math.Round(t.StartHeight / t.UnitSize))
}
