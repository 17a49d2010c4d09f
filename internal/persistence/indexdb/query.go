package indexdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"polardrop.dev/internal/sim/occupancy"
)

// Runs lists recorded runs, newest first.
func (s *SQLiteIndex) Runs(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.world_id, r.seed, r.started_at, r.tuning_json,
			COALESCE((SELECT MAX(tick) FROM ticks t WHERE t.run_id = r.run_id), 0),
			(SELECT COUNT(*) FROM spawns s WHERE s.run_id = r.run_id),
			(SELECT COUNT(*) FROM landings l WHERE l.run_id = r.run_id),
			(SELECT COUNT(*) FROM rejections j WHERE j.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started_at DESC, r.run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var (
			rr        RunRow
			startedAt string
			tuneJSON  string
			lastTick  int64
		)
		if err := rows.Scan(&rr.RunID, &rr.WorldID, &rr.Seed, &startedAt, &tuneJSON,
			&lastTick, &rr.Spawns, &rr.Landings, &rr.Rejections); err != nil {
			return nil, err
		}
		if rr.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("run %s: started_at: %w", rr.RunID, err)
		}
		if err := json.Unmarshal([]byte(tuneJSON), &rr.Tuning); err != nil {
			return nil, fmt.Errorf("run %s: tuning: %w", rr.RunID, err)
		}
		rr.LastTick = uint64(lastTick)
		out = append(out, rr)
	}
	return out, rows.Err()
}

// Landings returns the landings of runID in landing order.
func (s *SQLiteIndex) Landings(ctx context.Context, runID string, limit int) ([]LandingRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tick, body_id, r, h, a, height
		FROM landings
		WHERE run_id = ?
		ORDER BY tick, body_id
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LandingRow
	for rows.Next() {
		var (
			l    LandingRow
			tick int64
		)
		if err := rows.Scan(&tick, &l.BodyID, &l.Cell.R, &l.Cell.H, &l.Cell.A, &l.Height); err != nil {
			return nil, err
		}
		l.Tick = uint64(tick)
		out = append(out, l)
	}
	return out, rows.Err()
}

// ColumnHeights rebuilds the per-column stack heights of runID from its
// landings. Settled blocks are never removed, so the height is the count.
func (s *SQLiteIndex) ColumnHeights(ctx context.Context, runID string) ([]occupancy.ColumnHeight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r, a, COUNT(*)
		FROM landings
		WHERE run_id = ?
		GROUP BY r, a
		ORDER BY r, a`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []occupancy.ColumnHeight
	for rows.Next() {
		var ch occupancy.ColumnHeight
		if err := rows.Scan(&ch.R, &ch.A, &ch.Height); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// HasRun reports whether runID has been recorded.
func (s *SQLiteIndex) HasRun(ctx context.Context, runID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
