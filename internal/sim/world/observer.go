package world

import (
	"encoding/json"

	"polardrop.dev/internal/observerproto"
)

type ObserverJoinRequest struct {
	SessionID    string
	TickOut      chan []byte
	IncludeTable bool
}

type observerClient struct {
	id           string
	tickOut      chan []byte
	includeTable bool
	sentTable    bool
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:           req.SessionID,
		tickOut:      req.TickOut,
		includeTable: req.IncludeTable,
	}
}

func (w *World) handleObserverLeave(sessionID string) {
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
}

func (w *World) broadcastTick(entry TickLogEntry) {
	if len(w.observers) == 0 {
		return
	}
	msg := w.buildTickMsg(entry)
	plain, err := json.Marshal(msg)
	if err != nil {
		w.logf("tick %d: marshal observer tick: %v", entry.Tick, err)
		return
	}
	var withTable []byte
	for _, c := range w.observers {
		if c.includeTable || !c.sentTable {
			if withTable == nil {
				msg.Table = w.table.Entries()
				if withTable, err = json.Marshal(msg); err != nil {
					w.logf("tick %d: marshal observer table: %v", entry.Tick, err)
					continue
				}
			}
			sendLatest(c.tickOut, withTable)
			c.sentTable = true
			continue
		}
		sendLatest(c.tickOut, plain)
	}
}

func (w *World) buildTickMsg(entry TickLogEntry) observerproto.TickMsg {
	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            entry.Tick,
		Falling:         make([]observerproto.BodyState, 0, len(w.active)),
		Digest:          entry.Digest,
	}
	for _, b := range w.active {
		msg.Falling = append(msg.Falling, observerproto.BodyState{
			ID:    b.ID,
			Pos:   [3]float64{b.X, b.Height, b.Z},
			Color: b.Color,
		})
	}
	for _, s := range entry.Spawns {
		msg.Spawns = append(msg.Spawns, observerproto.BodyState{
			ID:    s.ID,
			Pos:   [3]float64{s.X, w.tune.StartHeight, s.Z},
			Color: s.Color,
		})
	}
	for _, l := range entry.Landings {
		p := w.index.At(l.Cell.R, l.Cell.A, false)
		msg.Landings = append(msg.Landings, observerproto.Landing{
			ID:   l.ID,
			Cell: l.Cell,
			Pos:  [3]float64{p.X, l.Height, p.Z},
		})
	}
	for _, r := range entry.Rejections {
		msg.Rejections = append(msg.Rejections, observerproto.Rejection{ID: r.ID, Reason: r.Reason})
	}
	return msg
}

// sendLatest delivers b, dropping the oldest queued message if the client is behind.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
