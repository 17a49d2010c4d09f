package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"polardrop.dev/internal/sim/tuning"
)

func main() {
	var (
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		tuningPath = flag.String("tuning", "", "tuning.yaml to use instead of the recorded one (optional)")
		seed       = flag.Int64("seed", 0, "seed to use instead of the recorded one (optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if strings.TrimSpace(*eventsDir) == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	opts := replayOptions{EventsDir: *eventsDir, ToTick: *toTick}
	if tp := strings.TrimSpace(*tuningPath); tp != "" {
		tune, err := tuning.Load(tp)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		opts.Tuning = &tune
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			opts.Seed = seed
		}
	})

	res, err := replay(opts)
	if err != nil {
		var div *DivergenceError
		if errors.As(err, &div) {
			fmt.Fprintf(os.Stderr, "replay diverged after %d ticks: %v\n", res.Checked, err)
			os.Exit(3)
		}
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: world=%s run=%s checked=%d ticks last_tick=%d landings=%d digest=%s\n",
		res.WorldID, res.RunID, res.Checked, res.LastTick, res.Landings, res.Digest)
}
