package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"polardrop.dev/internal/observerproto"
	"polardrop.dev/internal/persistence/indexdb"
	"polardrop.dev/internal/protocol"
	"polardrop.dev/internal/sim/tuning"
	"polardrop.dev/internal/sim/world"
)

func startTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	tune := tuning.Defaults()
	tune.SpawnEveryTicks = 0
	tune.TickRateHz = 100
	w, err := world.New(world.WorldConfig{ID: "w-test", RunID: "run-test", Tuning: tune})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	s := NewServer(w, nil)
	mux := http.NewServeMux()
	s.Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return ts, s
}

func postSpawn(t *testing.T, base string, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(base+"/admin/v1/spawn", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func TestBootstrapHandler(t *testing.T) {
	ts, _ := startTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.ProtocolVersion != observerproto.Version || b.WorldID != "w-test" || b.RunID != "run-test" {
		t.Fatalf("bootstrap=%+v", b)
	}
	if b.WorldParams.Sectors != 16 || b.WorldParams.UnitSize != 0.25 || len(b.Palette) != 4 {
		t.Fatalf("world params=%+v palette=%v", b.WorldParams, b.Palette)
	}
}

func TestSpawnHandler_AcceptThenRefuse(t *testing.T) {
	ts, _ := startTestServer(t)

	resp, body := postSpawn(t, ts.URL, `{"x":1,"z":0}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var first observerproto.SpawnResult
	if err := json.Unmarshal(body, &first); err != nil {
		t.Fatal(err)
	}
	if first.ID != "B000000" || first.Reason != "" {
		t.Fatalf("first=%+v", first)
	}

	// Same cell while the first block is still near the start layer.
	resp, body = postSpawn(t, ts.URL, `{"x":1,"z":0}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	var second observerproto.SpawnResult
	_ = json.Unmarshal(body, &second)
	if second.Reason != protocol.ReasonCellBusy || second.ID != "" {
		t.Fatalf("second=%+v", second)
	}

	resp, body = postSpawn(t, ts.URL, `{"x":50,"z":50}`)
	if resp.StatusCode != http.StatusConflict || !strings.Contains(string(body), protocol.ReasonOutOfBounds) {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
}

func TestSpawnHandler_BadRequests(t *testing.T) {
	ts, s := startTestServer(t)

	resp, body := postSpawn(t, ts.URL, `{"x":"one"}`)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), protocol.ErrProtoBadRequest) {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	resp, body = postSpawn(t, ts.URL, `{"x":1,"z":0,"y":3}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field accepted: status=%d body=%s", resp.StatusCode, body)
	}

	getResp, err := http.Get(ts.URL + "/admin/v1/spawn")
	if err != nil {
		t.Fatal(err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d", getResp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/spawn", strings.NewReader(`{"x":1,"z":0}`))
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	s.SpawnHandler()(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote spawn status=%d", rec.Code)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	ts, s := startTestServer(t)
	s.SetIndexStats(func() indexdb.IndexStats { return indexdb.IndexStats{QueueDepth: 3, DropTickTotal: 1} })

	postSpawn(t, ts.URL, `{"x":0,"z":-1}`)

	resp, err := http.Get(ts.URL + "/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	var st world.Status
	err = json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.WorldID != "w-test" || st.Stats.Spawned != 1 {
		t.Fatalf("status=%+v", st)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`polardrop_world_tick{world="w-test"}`,
		`polardrop_total{world="w-test",event="spawned"} 1`,
		`polardrop_index_queue_depth{world="w-test"} 3`,
	} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("metrics missing %q:\n%s", want, b)
		}
	}
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/observer/ws"
}

func TestWSHandler_StreamsTicks(t *testing.T) {
	ts, _ := startTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatal(err)
	}
	postSpawn(t, ts.URL, `{"x":-1,"z":0}`)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	sawFalling := false
	for i := 0; i < 50 && !sawFalling; i++ {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := protocol.ValidateJSON(protocol.SchemaTick, msg); err != nil {
			t.Fatalf("tick does not match schema: %v\n%s", err, msg)
		}
		var tm observerproto.TickMsg
		if err := json.Unmarshal(msg, &tm); err != nil {
			t.Fatal(err)
		}
		sawFalling = len(tm.Falling) > 0
	}
	if !sawFalling {
		t.Fatalf("never saw the injected block falling")
	}
}

func TestWSHandler_RejectsBadHandshake(t *testing.T) {
	ts, _ := startTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO","protocol_version":"0.1"}`)); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:8080":   true,
		"10.0.0.1:80":  false,
		"garbage":      false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
