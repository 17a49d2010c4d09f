package world

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"polardrop.dev/internal/sim/grid"
	"polardrop.dev/internal/sim/occupancy"
	"polardrop.dev/internal/sim/tuning"
	"polardrop.dev/internal/sim/world/logic/rates"
)

type WorldConfig struct {
	ID     string
	RunID  string
	Tuning tuning.Tuning
}

// SpawnRequest asks the world to drop a block at (X, Z). The request is
// applied at the next tick boundary, in arrival order.
type SpawnRequest struct {
	X, Z float64
	Resp chan SpawnResponse
}

type SpawnResponse struct {
	Tick   uint64
	ID     string
	Reason string // empty when the spawn was accepted
}

// World is a single-threaded authoritative drop session.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg  WorldConfig
	tune tuning.Tuning

	tick atomic.Uint64

	index   *grid.Indexer
	tracker *occupancy.Tracker
	table   *occupancy.Table

	// Falling bodies in spawn order.
	active    []*occupancy.Body
	conflicts map[string]int

	spawnSeq   uint64
	injectRate rates.Window
	stats      *Stats

	inbox         chan SpawnRequest
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	statusReq     chan chan Status
	stop          chan struct{}
	stopOnce      sync.Once

	observers map[string]*observerClient

	// Optional (may be nil).
	tickLogger TickLogger
	logger     *log.Logger
}

func New(cfg WorldConfig) (*World, error) {
	tune := cfg.Tuning
	if err := tune.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	ix, err := grid.NewIndexer(grid.Config{
		UnitSize:    tune.UnitSize,
		Sectors:     tune.Sectors,
		RadialCells: tune.RadialCells,
		Bounds:      grid.BoundsPolicy(tune.BoundsPolicy),
	})
	if err != nil {
		return nil, err
	}
	tr, err := occupancy.NewTracker(tune.UnitSize, tune.HeightCells)
	if err != nil {
		return nil, err
	}
	return &World{
		cfg:           cfg,
		tune:          tune,
		index:         ix,
		tracker:       tr,
		table:         occupancy.NewTable(),
		conflicts:     map[string]int{},
		stats:         NewStats(),
		inbox:         make(chan SpawnRequest, 256),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		statusReq:     make(chan chan Status, 16),
		stop:          make(chan struct{}),
		observers:     map[string]*observerClient{},
	}, nil
}

func (w *World) SetTickLogger(l TickLogger)               { w.tickLogger = l }
func (w *World) SetLogger(l *log.Logger)                  { w.logger = l }
func (w *World) Inbox() chan<- SpawnRequest               { return w.inbox }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Config() WorldConfig   { return w.cfg }
func (w *World) Tuning() tuning.Tuning { return w.tune }

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.tune.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingSpawns []SpawnRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.inbox:
			pendingSpawns = append(pendingSpawns, req)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case resp := <-w.statusReq:
			resp <- w.status()
		case <-ticker.C:
			w.step(pendingSpawns)
			pendingSpawns = pendingSpawns[:0]
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering semantics as Run.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(spawns []SpawnRequest) (tick uint64, digest string) {
	tick = w.tick.Load()
	return tick, w.step(spawns)
}

func (w *World) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
