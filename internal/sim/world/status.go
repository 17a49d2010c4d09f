package world

import (
	"context"

	"polardrop.dev/internal/sim/occupancy"
)

type Status struct {
	WorldID  string      `json:"world_id"`
	RunID    string      `json:"run_id,omitempty"`
	Tick     uint64      `json:"tick"`
	Falling  int         `json:"falling"`
	Occupied int         `json:"occupied"`
	Stats    Stats       `json:"stats"`
	Window   StatsBucket `json:"window"`

	Columns []occupancy.ColumnHeight `json:"columns,omitempty"`
}

// Status asks the running world loop for a consistent view of its state.
func (w *World) Status(ctx context.Context) (Status, error) {
	resp := make(chan Status, 1)
	select {
	case w.statusReq <- resp:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-resp:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Table exposes the occupancy table. Only safe when the world loop is not running.
func (w *World) Table() *occupancy.Table { return w.table }

// Snapshot returns the same view as Status without going through the loop.
// Only safe when the world loop is not running.
func (w *World) Snapshot() Status { return w.status() }

func (w *World) status() Status {
	return Status{
		WorldID:  w.cfg.ID,
		RunID:    w.cfg.RunID,
		Tick:     w.tick.Load(),
		Falling:  len(w.active),
		Occupied: w.table.Len(),
		Stats:    *w.stats,
		Window:   w.stats.Window(),
		Columns:  w.table.Columns(),
	}
}
