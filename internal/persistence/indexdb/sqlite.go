package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"polardrop.dev/internal/sim/occupancy"
	"polardrop.dev/internal/sim/tuning"
	"polardrop.dev/internal/sim/world"
)

// SQLiteIndex is a secondary, queryable index of a drop session. Writes go
// through a buffered channel to a single writer goroutine; the JSONL tick log
// remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	runID  atomic.Value // string

	dropTick atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqFlush
)

type req struct {
	kind reqKind

	runID string
	tick  world.TickLogEntry
	done  chan struct{}
}

type RunRow struct {
	RunID      string        `json:"run_id"`
	WorldID    string        `json:"world_id"`
	Seed       int64         `json:"seed"`
	StartedAt  time.Time     `json:"started_at"`
	Tuning     tuning.Tuning `json:"tuning"`
	LastTick   uint64        `json:"last_tick"`
	Spawns     int           `json:"spawns"`
	Landings   int           `json:"landings"`
	Rejections int           `json:"rejections"`
}

type LandingRow struct {
	Tick   uint64         `json:"tick"`
	BodyID string         `json:"body_id"`
	Cell   occupancy.Cell `json:"cell"`
	Height float64        `json:"height"`
}

type IndexStats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTickTotal uint64 `json:"drop_tick_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.runID.Store("")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordRun stores the run row synchronously and makes runID the target of
// subsequent WriteTick calls.
func (s *SQLiteIndex) RecordRun(ctx context.Context, runID, worldID string, tune tuning.Tuning, startedAt time.Time) error {
	if runID == "" {
		return fmt.Errorf("empty run id")
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(run_id,world_id,seed,started_at,tuning_json) VALUES(?,?,?,?,?)`,
		runID, worldID, tune.Seed, startedAt.UTC().Format(time.RFC3339Nano), string(b),
	); err != nil {
		return err
	}
	s.runID.Store(runID)
	return nil
}

// WriteTick queues e for indexing under the current run. It never blocks the
// world loop: when the queue is full the entry is dropped and counted.
func (s *SQLiteIndex) WriteTick(e world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	runID, _ := s.runID.Load().(string)
	if runID == "" {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, runID: runID, tick: e}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

// Flush waits until every queued write before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s.closed.Load() {
		return fmt.Errorf("index closed")
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() IndexStats {
	if s == nil {
		return IndexStats{}
	}
	return IndexStats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,digest,spawns,landings,rejections) VALUES(?,?,?,?,?,?)`)
	insertSpawn, _ := s.db.Prepare(`INSERT OR REPLACE INTO spawns(run_id,tick,body_id,r,a,x,z,color,clamped) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertLanding, _ := s.db.Prepare(`INSERT OR REPLACE INTO landings(run_id,tick,body_id,r,h,a,height) VALUES(?,?,?,?,?,?,?)`)
	insertRejection, _ := s.db.Prepare(`INSERT OR REPLACE INTO rejections(run_id,tick,seq,body_id,reason,x,z) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertSpawn, insertLanding, insertRejection} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		e := r.tick
		tick := int64(e.Tick)
		if !exec(insertTick, r.runID, tick, e.Digest, len(e.Spawns), len(e.Landings), len(e.Rejections)) {
			continue
		}
		ok := true
		for _, sp := range e.Spawns {
			if ok = exec(insertSpawn, r.runID, tick, sp.ID, sp.R, sp.A, sp.X, sp.Z, sp.Color, sp.Clamped); !ok {
				break
			}
		}
		for _, l := range e.Landings {
			if !ok {
				break
			}
			ok = exec(insertLanding, r.runID, tick, l.ID, l.Cell.R, l.Cell.H, l.Cell.A, l.Height)
		}
		for i, rj := range e.Rejections {
			if !ok {
				break
			}
			var bodyID any
			if rj.ID != "" {
				bodyID = rj.ID
			}
			ok = exec(insertRejection, r.runID, tick, i, bodyID, rj.Reason, rj.X, rj.Z)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
