package log

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"polardrop.dev/internal/sim/occupancy"
	"polardrop.dev/internal/sim/world"
)

func TestTickLogger_RoundTripAcrossHours(t *testing.T) {
	runDir := t.TempDir()
	l := NewTickLogger(runDir)

	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	want := []world.TickLogEntry{
		{Tick: 0, Run: &world.RunHeader{WorldID: "w1"}, Spawns: []world.SpawnRecord{{ID: "B000000", R: 4, A: 3, Color: "#ff0000"}}, Digest: "aa"},
		{Tick: 1, Injected: []world.InjectedSpawn{{X: 0.5, Z: -0.5}}, Digest: "bb"},
		{Tick: 2, Landings: []world.LandingRecord{{ID: "B000000", Cell: occupancy.Cell{R: 4, A: 3}}}, Digest: "cc"},
	}
	for i, e := range want {
		if i == 2 {
			clock = clock.Add(2 * time.Minute)
		}
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write tick %d: %v", e.Tick, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := EventFiles(EventsDir(runDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want one per hour", files)
	}
	if filepath.Base(files[0]) != "events-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first file %s", files[0])
	}

	var got []world.TickLogEntry
	if err := ReadTicks(EventsDir(runDir), func(e world.TickLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTicks_StopsOnCallbackError(t *testing.T) {
	runDir := t.TempDir()
	l := NewTickLogger(runDir)
	for i := uint64(0); i < 3; i++ {
		if err := l.WriteTick(world.TickLogEntry{Tick: i}); err != nil {
			t.Fatal(err)
		}
	}
	_ = l.Close()

	stop := errors.New("stop")
	n := 0
	err := ReadTicks(EventsDir(runDir), func(world.TickLogEntry) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}

func TestReadTicks_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := ReadTicks(dir, func(world.TickLogEntry) error { return nil }); err == nil {
		t.Fatalf("expected error for empty events dir")
	}
}

type failLogger struct{ err error }

func (f failLogger) WriteTick(world.TickLogEntry) error { return f.err }

func TestMultiTickLogger_WritesAllSinks(t *testing.T) {
	boom := errors.New("boom")
	var seen []uint64
	rec := recordLogger(func(e world.TickLogEntry) { seen = append(seen, e.Tick) })

	m := MultiTickLogger{failLogger{boom}, nil, rec}
	if err := m.WriteTick(world.TickLogEntry{Tick: 7}); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if len(seen) != 1 || seen[0] != 7 {
		t.Fatalf("later sink not written: %v", seen)
	}
}

type recordLogger func(world.TickLogEntry)

func (r recordLogger) WriteTick(e world.TickLogEntry) error { r(e); return nil }

func TestJSONLZstdWriter_RotatesOnInjectedClockUTCHour(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "events")

	// 13:00 at UTC+9 is 04:00 UTC.
	zone := time.FixedZone("UTC+9", 9*3600)
	clock := time.Date(2001, 2, 3, 13, 0, 0, 0, zone)
	w.now = func() time.Time { return clock }

	write := func(tick uint64, at time.Time) {
		t.Helper()
		clock = at
		if err := w.Write(world.TickLogEntry{Tick: tick}); err != nil {
			t.Fatalf("write tick %d: %v", tick, err)
		}
	}
	write(0, clock)
	write(1, clock.Add(59*time.Minute+59*time.Second))
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Reopening within the same hour appends to the existing file.
	write(2, time.Date(2001, 2, 3, 13, 30, 0, 0, zone))
	write(3, time.Date(2001, 2, 3, 14, 0, 0, 0, zone))
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := EventFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	wantNames := []string{"events-2001-02-03-04.jsonl.zst", "events-2001-02-03-05.jsonl.zst"}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}

	var ticks []uint64
	if err := ReadTicks(dir, func(e world.TickLogEntry) error {
		ticks = append(ticks, e.Tick)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff([]uint64{0, 1, 2, 3}, ticks); diff != "" {
		t.Fatalf("ticks (-want +got):\n%s", diff)
	}
}
