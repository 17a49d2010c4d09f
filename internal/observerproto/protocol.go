package observerproto

import "polardrop.dev/internal/sim/occupancy"

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Send the full occupancy table with every tick instead of only the first one.
	IncludeTable bool `json:"include_table,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	RunID           string      `json:"run_id,omitempty"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Palette         []string    `json:"palette"`
}

type WorldParams struct {
	TickRateHz  int     `json:"tick_rate_hz"`
	UnitSize    float64 `json:"unit_size"`
	Sectors     int     `json:"sectors"`
	RadialCells int     `json:"radial_cells"`
	HeightCells int     `json:"height_cells"`
	StartHeight float64 `json:"start_height"`
	Seed        int64   `json:"seed"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Falling    []BodyState       `json:"falling"`
	Spawns     []BodyState       `json:"spawns,omitempty"`
	Landings   []Landing         `json:"landings,omitempty"`
	Rejections []Rejection       `json:"rejections,omitempty"`
	Table      []occupancy.Entry `json:"table,omitempty"`
	Digest     string            `json:"digest"`
}

type BodyState struct {
	ID    string     `json:"id"`
	Pos   [3]float64 `json:"pos"`
	Color string     `json:"color"`
}

type Landing struct {
	ID   string         `json:"id"`
	Cell occupancy.Cell `json:"cell"`
	Pos  [3]float64     `json:"pos"`
}

type Rejection struct {
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// Body of POST /admin/v1/spawn.
type SpawnMsg struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

type SpawnResult struct {
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
	Tick   uint64 `json:"tick"`
}
