package world

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"polardrop.dev/internal/sim/occupancy"
)

type StatsBucket struct {
	Spawned  int `json:"spawned"`
	Landings int `json:"landings"`
	Refused  int `json:"refused"`
}

// Stats keeps running counters plus a rolling window of per-bucket activity.
type Stats struct {
	Spawned  uint64 `json:"spawned"`
	Settled  uint64 `json:"settled"`
	Rejected uint64 `json:"rejected"`
	Refused  uint64 `json:"refused"`

	Columns Columns `json:"columns"`

	bucketTicks uint64
	buckets     []StatsBucket
	curIdx      int
	curBase     uint64 // start tick (inclusive) of current bucket

	lastSpawned, lastSettled, lastRefused uint64
}

// Columns summarizes stack heights over non-empty columns.
type Columns struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Max    int     `json:"max"`
}

func NewStats() *Stats { return NewWindowedStats(60, 3600) }

func NewWindowedStats(bucketTicks, windowTicks uint64) *Stats {
	if bucketTicks == 0 {
		bucketTicks = 60
	}
	if windowTicks < bucketTicks {
		windowTicks = bucketTicks
	}
	n := int(windowTicks / bucketTicks)
	return &Stats{
		bucketTicks: bucketTicks,
		buckets:     make([]StatsBucket, n),
	}
}

func (s *Stats) rotate(nowTick uint64) {
	// Move forward until nowTick is in [curBase, curBase+bucketTicks).
	for nowTick >= s.curBase+s.bucketTicks {
		s.curIdx = (s.curIdx + 1) % len(s.buckets)
		s.buckets[s.curIdx] = StatsBucket{}
		s.curBase += s.bucketTicks
	}
}

// Observe folds the counters changed during nowTick into the window and
// recomputes column statistics from the table.
func (s *Stats) Observe(nowTick uint64, tab *occupancy.Table) {
	s.rotate(nowTick)
	b := &s.buckets[s.curIdx]
	b.Spawned += int(s.Spawned - s.lastSpawned)
	b.Landings += int(s.Settled - s.lastSettled)
	b.Refused += int(s.Refused - s.lastRefused)
	s.lastSpawned, s.lastSettled, s.lastRefused = s.Spawned, s.Settled, s.Refused

	cols := tab.Columns()
	if len(cols) == 0 {
		s.Columns = Columns{}
		return
	}
	hs := make([]float64, len(cols))
	for i, c := range cols {
		hs[i] = float64(c.Height)
	}
	mean, std := stat.MeanStdDev(hs, nil)
	if len(hs) == 1 {
		std = 0
	}
	s.Columns = Columns{
		Count:  len(hs),
		Mean:   mean,
		StdDev: std,
		Max:    int(floats.Max(hs)),
	}
}

// Window returns the summed activity over the rolling window.
func (s *Stats) Window() StatsBucket {
	var sum StatsBucket
	for _, b := range s.buckets {
		sum.Spawned += b.Spawned
		sum.Landings += b.Landings
		sum.Refused += b.Refused
	}
	return sum
}
