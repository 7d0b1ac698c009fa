package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randalmurphal/flowd/internal/events"
)

func dialWS(t *testing.T, e *testEnv) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	return msg
}

func TestWebSocketSubscribeReceivesEvents(t *testing.T) {
	e := newTestEnv(t)
	conn := dialWS(t, e)

	if err := conn.WriteJSON(WSMessage{Type: "subscribe", WorkflowID: "wf-1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ack := readWS(t, conn)
	if ack["type"] != "subscribed" || ack["workflowId"] != "wf-1" {
		t.Fatalf("ack = %v", ack)
	}

	e.server.publisher.Publish(events.New(events.TypeStateSaved, "wf-1", map[string]any{"savedBy": "u1"}))

	msg := readWS(t, conn)
	if msg["type"] != "event" || msg["event"] != string(events.TypeStateSaved) {
		t.Errorf("msg = %v", msg)
	}

	// Events for other workflows don't arrive.
	e.server.publisher.Publish(events.New(events.TypeStateSaved, "wf-2", nil))
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var stray map[string]any
	if err := conn.ReadJSON(&stray); err == nil {
		t.Errorf("unexpected message for foreign workflow: %v", stray)
	}
}

func TestWebSocketPresenceRelay(t *testing.T) {
	e := newTestEnv(t)

	a := dialWS(t, e)
	b := dialWS(t, e)

	for _, conn := range []*websocket.Conn{a, b} {
		if err := conn.WriteJSON(WSMessage{Type: "subscribe", WorkflowID: "wf-1"}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		readWS(t, conn) // ack
	}

	cursor, _ := json.Marshal(map[string]any{"userId": "u1", "x": 120, "y": 64})
	if err := a.WriteJSON(WSMessage{Type: "cursor", WorkflowID: "wf-1", Data: cursor}); err != nil {
		t.Fatalf("send cursor: %v", err)
	}

	msg := readWS(t, b)
	if msg["event"] != string(events.TypeCursor) {
		t.Fatalf("msg = %v", msg)
	}
	data, ok := msg["data"].(map[string]any)
	if !ok || data["userId"] != "u1" {
		t.Errorf("data = %v", msg["data"])
	}
}

func TestWebSocketPingPong(t *testing.T) {
	e := newTestEnv(t)
	conn := dialWS(t, e)

	if err := conn.WriteJSON(WSMessage{Type: "ping"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	msg := readWS(t, conn)
	if msg["type"] != "pong" {
		t.Errorf("msg = %v", msg)
	}
}

func TestWebSocketUnknownType(t *testing.T) {
	e := newTestEnv(t)
	conn := dialWS(t, e)

	if err := conn.WriteJSON(WSMessage{Type: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readWS(t, conn)
	if msg["type"] != "error" {
		t.Errorf("msg = %v", msg)
	}
}
