package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kmarket/odds-stream/internal/auth"
	"github.com/kmarket/odds-stream/internal/hub"
)

type fakeValidator struct{}

func (fakeValidator) Validate(_ context.Context, token string) (auth.SessionData, error) {
	if token == "good" {
		return auth.SessionData{UserID: 1}, nil
	}
	return auth.SessionData{}, auth.ErrInvalidToken
}

func newTestServer(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	h := hub.New(16, nil)
	handler := NewHandler(h, fakeValidator{}, func(*http.Request) bool { return true }, nil)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/odds?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal frame %s: %v", data, err)
	}
	return m
}

func TestRejectsInvalidToken(t *testing.T) {
	_, srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/odds?token=bad"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded with invalid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %v, want 401", resp)
	}
}

func TestUninitializedHubReturns503(t *testing.T) {
	handler := NewHandler(nil, fakeValidator{}, nil, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/odds?token=good")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestSubscribeAckAndDelivery(t *testing.T) {
	h, srv := newTestServer(t)
	conn := dial(t, srv, "good")

	if err := conn.WriteJSON(map[string]any{"type": "subscribe", "markets": []string{"42"}}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ack := readFrame(t, conn)
	if ack["type"] != "ack" || ack["ok"] != true {
		t.Fatalf("ack = %v", ack)
	}
	subs, _ := ack["subscribed"].([]any)
	if len(subs) != 1 || subs[0].(float64) != 42 {
		t.Fatalf("subscribed = %v, want [42]", ack["subscribed"])
	}

	// ack confirmado => assinatura já registrada no hub
	h.Publish(42, json.RawMessage(`{"type":"odds_update","payload":{"home":1.5}}`))

	ev := readFrame(t, conn)
	if ev["type"] != "odds_update" {
		t.Fatalf("event type = %v", ev["type"])
	}
	if ev["marketId"].(float64) != 42 || ev["seq"].(float64) != 1 {
		t.Fatalf("routing fields = marketId %v seq %v", ev["marketId"], ev["seq"])
	}
	if ev["ts"].(float64) <= 0 {
		t.Fatalf("ts missing: %v", ev["ts"])
	}
	payload, _ := ev["payload"].(map[string]any)
	if payload["home"] != 1.5 {
		t.Fatalf("payload = %v", ev["payload"])
	}
}

func TestUnsubscribeStopsPush(t *testing.T) {
	h, srv := newTestServer(t)
	conn := dial(t, srv, "good")

	_ = conn.WriteJSON(map[string]any{"type": "subscribe", "markets": []int{42}})
	readFrame(t, conn) // ack

	_ = conn.WriteJSON(map[string]any{"type": "unsubscribe", "markets": []int{42}})
	readFrame(t, conn) // ack

	h.Publish(42, json.RawMessage(`{"payload":{}}`))

	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("received event after unsubscribe")
	}
}

func TestResumeReplaysHistory(t *testing.T) {
	h, srv := newTestServer(t)

	h.Publish(42, json.RawMessage(`{"payload":{"v":1}}`))
	h.Publish(42, json.RawMessage(`{"payload":{"v":2}}`))
	h.Publish(42, json.RawMessage(`{"payload":{"v":3}}`))

	conn := dial(t, srv, "good")
	_ = conn.WriteJSON(map[string]any{"type": "resume", "offsets": map[string]int64{"42": 1}})

	// ack e eventos replayed saem pelo mesmo writer; a ordem entre eles
	// não é garantida, então classifica pelo type
	var ackSeen bool
	var seqs []float64
	for i := 0; i < 3; i++ {
		m := readFrame(t, conn)
		switch m["type"] {
		case "ack":
			if m["resume"] != true {
				t.Fatalf("resume ack = %v", m)
			}
			ackSeen = true
		case "odds_update":
			seqs = append(seqs, m["seq"].(float64))
		default:
			t.Fatalf("unexpected frame %v", m)
		}
	}

	if !ackSeen {
		t.Fatal("resume ack not received")
	}
	if len(seqs) != 2 || seqs[0] != 2 || seqs[1] != 3 {
		t.Fatalf("replayed seqs = %v, want [2 3]", seqs)
	}
}

func TestPingRefreshesHeartbeatAndPongs(t *testing.T) {
	_, srv := newTestServer(t)
	conn := dial(t, srv, "good")

	_ = conn.WriteJSON(map[string]any{"type": "ping"})

	pong := readFrame(t, conn)
	if pong["type"] != "pong" {
		t.Fatalf("reply = %v, want pong", pong)
	}
	if pong["ts"].(float64) <= 0 {
		t.Fatalf("pong ts = %v", pong["ts"])
	}
}

func TestConnectionCloseDropsSubscriptions(t *testing.T) {
	h, srv := newTestServer(t)
	conn := dial(t, srv, "good")

	_ = conn.WriteJSON(map[string]any{"type": "subscribe", "markets": []int{42}})
	readFrame(t, conn) // ack

	conn.Close()

	// o teardown roda assíncrono; espera o contador de conexões zerar
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.GetStats().Connections == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connection count = %d after close", h.GetStats().Connections)
}
