package world

import (
	"polardrop.dev/internal/protocol"
	"polardrop.dev/internal/sim/occupancy"
)

func (w *World) step(spawns []SpawnRequest) string {
	nowTick := w.tick.Load()
	entry := TickLogEntry{Tick: nowTick}
	if nowTick == 0 {
		entry.Run = &RunHeader{WorldID: w.cfg.ID, RunID: w.cfg.RunID, Tuning: w.tune}
	}

	// Injected spawns first, in arrival order, then the periodic spawner.
	for _, req := range spawns {
		entry.Injected = append(entry.Injected, InjectedSpawn{X: req.X, Z: req.Z})
		var (
			rec    SpawnRecord
			reason string
		)
		if ok, _ := w.injectRate.Allow(nowTick, uint64(w.tune.InjectWindowTicks), w.tune.InjectMax); ok {
			rec, reason = w.spawnAt(req.X, req.Z)
		} else {
			reason = protocol.ReasonRateLimited
		}
		w.recordSpawn(&entry, rec, reason, req.X, req.Z)
		if req.Resp != nil {
			req.Resp <- SpawnResponse{Tick: nowTick, ID: rec.ID, Reason: reason}
		}
	}
	if every := uint64(w.tune.SpawnEveryTicks); every > 0 && nowTick%every == 0 {
		x, z := w.timerSpawnPos(w.spawnSeq)
		rec, reason := w.spawnAt(x, z)
		w.recordSpawn(&entry, rec, reason, x, z)
	}

	w.systemDrop(&entry)
	w.stats.Observe(nowTick, w.table)

	digest := w.stateDigest(nowTick)
	entry.Digest = digest
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.logf("tick %d: write tick log: %v", nowTick, err)
		}
	}
	w.broadcastTick(entry)

	w.tick.Add(1)
	return digest
}

func (w *World) recordSpawn(entry *TickLogEntry, rec SpawnRecord, reason string, x, z float64) {
	if reason != "" {
		w.stats.Refused++
		entry.Rejections = append(entry.Rejections, RejectionRecord{Reason: reason, X: x, Z: z})
		return
	}
	entry.Spawns = append(entry.Spawns, rec)
}

// systemDrop steps every falling body once, in spawn order, and removes
// bodies that reached a terminal state.
func (w *World) systemDrop(entry *TickLogEntry) {
	kept := w.active[:0]
	for _, b := range w.active {
		switch w.tracker.Step(b, w.table) {
		case occupancy.Settled:
			delete(w.conflicts, b.ID)
			w.stats.Settled++
			entry.Landings = append(entry.Landings, LandingRecord{ID: b.ID, Cell: b.Cell, Height: b.Height})
			continue
		case occupancy.Falling:
			delete(w.conflicts, b.ID)
		case occupancy.Conflict:
			w.conflicts[b.ID]++
			if w.conflicts[b.ID] > w.tune.ConflictRetryTicks {
				w.reject(entry, b, protocol.ReasonConflict)
				continue
			}
		case occupancy.OutOfBounds:
			w.reject(entry, b, protocol.ReasonOutOfBounds)
			continue
		case occupancy.Rejected:
			continue
		}
		b.Height -= w.tune.FallStep
		kept = append(kept, b)
	}
	// Clear the tail so dropped bodies can be collected.
	for i := len(kept); i < len(w.active); i++ {
		w.active[i] = nil
	}
	w.active = kept
}

func (w *World) reject(entry *TickLogEntry, b *occupancy.Body, reason string) {
	b.Status = occupancy.StatusRejected
	delete(w.conflicts, b.ID)
	w.stats.Rejected++
	entry.Rejections = append(entry.Rejections, RejectionRecord{ID: b.ID, Reason: reason, X: b.X, Z: b.Z})
	w.logf("body %s rejected at height %.3f: %s", b.ID, b.Height, reason)
}
