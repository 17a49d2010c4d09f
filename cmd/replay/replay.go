package main

import (
	"errors"
	"fmt"

	persistlog "polardrop.dev/internal/persistence/log"
	"polardrop.dev/internal/sim/tuning"
	"polardrop.dev/internal/sim/world"
)

// replayOptions.Tuning and Seed, when non-nil, replace what the run header recorded.
type replayOptions struct {
	EventsDir string
	Tuning    *tuning.Tuning
	Seed      *int64
	ToTick    uint64
}

type replayResult struct {
	WorldID  string
	RunID    string
	Checked  uint64
	LastTick uint64
	Landings int
	Digest   string
}

// DivergenceError reports the first tick whose recomputed digest differs
// from the logged one.
type DivergenceError struct {
	Tick uint64
	Want string
	Got  string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("digest mismatch at tick %d: log=%s replay=%s", e.Tick, e.Want, e.Got)
}

var errStop = errors.New("stop")

func replay(opts replayOptions) (replayResult, error) {
	var (
		res replayResult
		w   *world.World
	)
	err := persistlog.ReadTicks(opts.EventsDir, func(e world.TickLogEntry) error {
		if w == nil {
			if e.Tick != 0 || e.Run == nil {
				return fmt.Errorf("events start at tick %d without a run header", e.Tick)
			}
			tune := e.Run.Tuning
			if opts.Tuning != nil {
				tune = *opts.Tuning
			}
			if opts.Seed != nil {
				tune.Seed = *opts.Seed
			}
			var err error
			w, err = world.New(world.WorldConfig{ID: e.Run.WorldID, RunID: e.Run.RunID, Tuning: tune})
			if err != nil {
				return err
			}
			res.WorldID, res.RunID = e.Run.WorldID, e.Run.RunID
		}
		if opts.ToTick != 0 && e.Tick > opts.ToTick {
			return errStop
		}
		if cur := w.CurrentTick(); e.Tick != cur {
			return fmt.Errorf("tick gap: log has %d, world is at %d", e.Tick, cur)
		}

		var spawns []world.SpawnRequest
		for _, in := range e.Injected {
			spawns = append(spawns, world.SpawnRequest{X: in.X, Z: in.Z})
		}
		tick, digest := w.StepOnce(spawns)
		if digest != e.Digest {
			return &DivergenceError{Tick: tick, Want: e.Digest, Got: digest}
		}
		res.Checked++
		res.LastTick = tick
		res.Landings += len(e.Landings)
		res.Digest = digest
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	return res, err
}
