package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"polardrop.dev/internal/observerproto"
	"polardrop.dev/internal/persistence/indexdb"
	"polardrop.dev/internal/protocol"
	"polardrop.dev/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *log.Logger

	indexStats func() indexdb.IndexStats

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// SetIndexStats exposes the SQLite writer queue on /metrics.
func (s *Server) SetIndexStats(fn func() indexdb.IndexStats) { s.indexStats = fn }

// Register mounts every endpoint on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", s.MetricsHandler())
	mux.HandleFunc("/v1/status", s.StatusHandler())
	mux.HandleFunc("/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	mux.HandleFunc("/admin/v1/spawn", s.SpawnHandler())
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		cfg := s.world.Config()
		tune := s.world.Tuning()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         cfg.ID,
			RunID:           cfg.RunID,
			Tick:            s.world.CurrentTick(),
			WorldParams: observerproto.WorldParams{
				TickRateHz:  tune.TickRateHz,
				UnitSize:    tune.UnitSize,
				Sectors:     tune.Sectors,
				RadialCells: tune.RadialCells,
				HeightCells: tune.HeightCells,
				StartHeight: tune.StartHeight,
				Seed:        tune.Seed,
			},
			Palette: tune.Palette,
		}
		writeJSON(rw, http.StatusOK, resp)
	}
}

func (s *Server) StatusHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st, err := s.world.Status(ctx)
		if err != nil {
			writeError(rw, http.StatusServiceUnavailable, protocol.ErrWorldBusy, err.Error())
			return
		}
		writeJSON(rw, http.StatusOK, st)
	}
}

// SpawnHandler injects a spawn at the next tick. Loopback only.
func (s *Server) SpawnHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var msg observerproto.SpawnMsg
		dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4096))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&msg); err != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "bad spawn body: "+err.Error())
			return
		}

		resp := make(chan world.SpawnResponse, 1)
		select {
		case s.world.Inbox() <- world.SpawnRequest{X: msg.X, Z: msg.Z, Resp: resp}:
		default:
			writeError(rw, http.StatusServiceUnavailable, protocol.ErrWorldBusy, "spawn queue full")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		select {
		case sr := <-resp:
			out := observerproto.SpawnResult{ID: sr.ID, Reason: sr.Reason, Tick: sr.Tick}
			code := http.StatusOK
			if sr.Reason != "" {
				code = http.StatusConflict
			}
			writeJSON(rw, code, out)
		case <-ctx.Done():
			writeError(rw, http.StatusServiceUnavailable, protocol.ErrWorldBusy, "world did not apply spawn in time")
		}
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := protocol.ValidateJSON(protocol.SchemaSubscribe, msg); err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}
		if sub.ProtocolVersion != observerproto.Version {
			closeWith(conn, websocket.ClosePolicyViolation, "unsupported protocol_version")
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		tickOut := make(chan []byte, 8)

		joinReq := world.ObserverJoinRequest{
			SessionID:    sid,
			TickOut:      tickOut,
			IncludeTable: sub.IncludeTable,
		}
		select {
		case s.world.ObserverJoin() <- joinReq:
		default:
			closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		s.logf("observer %s joined from %s", sid, r.RemoteAddr)
		defer func() {
			select {
			case s.world.ObserverLeave() <- sid:
			default:
				// World loop is stopping; nothing else to do.
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-tickOut:
					if !ok {
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// The stream is read-only after the handshake; reads only detect close.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.logf("observer %s left", sid)
	}
}

func (s *Server) MetricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st, err := s.world.Status(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		id := st.WorldID

		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP polardrop_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE polardrop_world_tick gauge\n")
		fmt.Fprintf(rw, "polardrop_world_tick{world=%q} %d\n", id, st.Tick)

		fmt.Fprintf(rw, "# HELP polardrop_bodies Bodies by state.\n")
		fmt.Fprintf(rw, "# TYPE polardrop_bodies gauge\n")
		fmt.Fprintf(rw, "polardrop_bodies{world=%q,state=%q} %d\n", id, "falling", st.Falling)
		fmt.Fprintf(rw, "polardrop_bodies{world=%q,state=%q} %d\n", id, "settled", st.Occupied)

		fmt.Fprintf(rw, "# HELP polardrop_total Lifetime counters.\n")
		fmt.Fprintf(rw, "# TYPE polardrop_total counter\n")
		fmt.Fprintf(rw, "polardrop_total{world=%q,event=%q} %d\n", id, "spawned", st.Stats.Spawned)
		fmt.Fprintf(rw, "polardrop_total{world=%q,event=%q} %d\n", id, "settled", st.Stats.Settled)
		fmt.Fprintf(rw, "polardrop_total{world=%q,event=%q} %d\n", id, "rejected", st.Stats.Rejected)
		fmt.Fprintf(rw, "polardrop_total{world=%q,event=%q} %d\n", id, "refused", st.Stats.Refused)

		fmt.Fprintf(rw, "# HELP polardrop_stats_window Rolling window stats.\n")
		fmt.Fprintf(rw, "# TYPE polardrop_stats_window gauge\n")
		fmt.Fprintf(rw, "polardrop_stats_window{world=%q,metric=%q} %d\n", id, "spawned", st.Window.Spawned)
		fmt.Fprintf(rw, "polardrop_stats_window{world=%q,metric=%q} %d\n", id, "landings", st.Window.Landings)
		fmt.Fprintf(rw, "polardrop_stats_window{world=%q,metric=%q} %d\n", id, "refused", st.Window.Refused)

		fmt.Fprintf(rw, "# HELP polardrop_column_height Stack height summary over non-empty columns.\n")
		fmt.Fprintf(rw, "# TYPE polardrop_column_height gauge\n")
		fmt.Fprintf(rw, "polardrop_column_height{world=%q,stat=%q} %.6f\n", id, "mean", st.Stats.Columns.Mean)
		fmt.Fprintf(rw, "polardrop_column_height{world=%q,stat=%q} %.6f\n", id, "std_dev", st.Stats.Columns.StdDev)
		fmt.Fprintf(rw, "polardrop_column_height{world=%q,stat=%q} %d\n", id, "max", st.Stats.Columns.Max)

		if s.indexStats != nil {
			is := s.indexStats()
			fmt.Fprintf(rw, "# HELP polardrop_index_queue_depth SQLite index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE polardrop_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "polardrop_index_queue_depth{world=%q} %d\n", id, is.QueueDepth)
			fmt.Fprintf(rw, "# HELP polardrop_index_dropped_total Tick entries dropped by the SQLite index.\n")
			fmt.Fprintf(rw, "# TYPE polardrop_index_dropped_total counter\n")
			fmt.Fprintf(rw, "polardrop_index_dropped_total{world=%q} %d\n", id, is.DropTickTotal)
		}
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, errorBody{Code: code, Message: msg})
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
