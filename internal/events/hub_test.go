package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsPublishedEvents(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	conn := dialHub(t, hub)

	// Give the register message time to land before publishing.
	time.Sleep(20 * time.Millisecond)
	if err := hub.Publish(context.Background(), BatchStarted("B-1", "BANK-001", 3)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if e.Type != TypeBatchStarted || e.BatchID != "B-1" {
		t.Errorf("event = %+v", e)
	}
}

func TestHub_KeepsIdleClientsAliveThroughPings(t *testing.T) {
	// Shrink the keepalive window so several ping cycles fit in the test.
	oldWait, oldPeriod := pongWait, pingPeriod
	pongWait, pingPeriod = 50*time.Millisecond, 20*time.Millisecond
	defer func() { pongWait, pingPeriod = oldWait, oldPeriod }()

	hub := NewHub()
	go hub.Run()

	conn := dialHub(t, hub)

	var pings atomic.Int64
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// The client read loop services control frames (pings) while idle.
	received := make(chan []byte, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}()

	// Stay idle across several read-deadline windows. Without server pings
	// the deadline would expire and the hub would drop the connection.
	time.Sleep(4 * pongWait)

	if err := hub.Publish(context.Background(), BatchStarted("B-2", "BANK-001", 1)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-received:
		var e Event
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if e.BatchID != "B-2" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("idle client was dropped before the event arrived")
	}

	if pings.Load() == 0 {
		t.Error("server never pinged the idle client")
	}
}
