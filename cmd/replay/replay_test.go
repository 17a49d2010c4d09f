package main

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	persistlog "polardrop.dev/internal/persistence/log"
	"polardrop.dev/internal/sim/tuning"
	"polardrop.dev/internal/sim/world"
)

// recordRun runs a session for n ticks with a few injected spawns and returns
// its events dir and final digest.
func recordRun(t *testing.T, n int) (string, string, int) {
	t.Helper()
	runDir := t.TempDir()
	tune := tuning.Defaults()
	tune.SpawnEveryTicks = 20

	w, err := world.New(world.WorldConfig{ID: "w1", RunID: "r1", Tuning: tune})
	if err != nil {
		t.Fatal(err)
	}
	tl := persistlog.NewTickLogger(runDir)
	landings := 0
	counter := countingLogger{n: &landings}
	w.SetTickLogger(persistlog.MultiTickLogger{tl, counter})

	var last string
	for i := 0; i < n; i++ {
		var spawns []world.SpawnRequest
		switch i {
		case 5:
			spawns = []world.SpawnRequest{{X: 0.5, Z: 0.5}}
		case 6:
			spawns = []world.SpawnRequest{{X: 40, Z: 0}, {X: -0.7, Z: 0.2}}
		}
		_, last = w.StepOnce(spawns)
	}
	if err := tl.Close(); err != nil {
		t.Fatal(err)
	}
	return persistlog.EventsDir(runDir), last, landings
}

type countingLogger struct{ n *int }

func (c countingLogger) WriteTick(e world.TickLogEntry) error {
	*c.n += len(e.Landings)
	return nil
}

func TestReplay_VerifiesRecordedRun(t *testing.T) {
	dir, digest, landings := recordRun(t, 400)
	if landings == 0 {
		t.Fatalf("recorded run has no landings")
	}

	res, err := replay(replayOptions{EventsDir: dir})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	want := replayResult{WorldID: "w1", RunID: "r1", Checked: 400, LastTick: 399, Landings: landings, Digest: digest}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestReplay_ToTick(t *testing.T) {
	dir, _, _ := recordRun(t, 100)
	res, err := replay(replayOptions{EventsDir: dir, ToTick: 49})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Checked != 50 || res.LastTick != 49 {
		t.Fatalf("res=%+v", res)
	}
}

func TestReplay_SeedOverrideDiverges(t *testing.T) {
	dir, _, _ := recordRun(t, 100)
	seed := int64(42)
	_, err := replay(replayOptions{EventsDir: dir, Seed: &seed})
	var div *DivergenceError
	if !errors.As(err, &div) {
		t.Fatalf("expected divergence, got %v", err)
	}
	if div.Tick != 0 {
		t.Fatalf("seed only changes the tick 0 digest, got divergence at %d", div.Tick)
	}
}

func TestReplay_MissingEvents(t *testing.T) {
	if _, err := replay(replayOptions{EventsDir: t.TempDir()}); err == nil {
		t.Fatalf("expected error")
	}
}
