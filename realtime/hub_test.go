package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastsToClients(t *testing.T) {
	h := NewHub(nil)
	go h.Run()
	defer h.Stop()

	conn := dialHub(t, h)
	waitForClients(t, h, 1)

	ev := NewEvent(EventImageIndexed, "pass-1")
	ev.Path = "/photos/a.jpg"
	h.Broadcast(ev)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Type != EventImageIndexed || got.PassID != "pass-1" || got.Path != "/photos/a.jpg" {
		t.Errorf("received %+v", got)
	}
	if got.Timestamp == 0 {
		t.Error("Timestamp not set")
	}
}

func TestHubRejectsUnknownOrigin(t *testing.T) {
	h := NewHub([]string{"http://allowed.test"})
	go h.Run()
	defer h.Stop()

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "http://evil.test")
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("Dial() error = nil, want handshake failure for unknown origin")
	}
}

func TestHubStopDisconnectsClients(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	conn := dialHub(t, h)
	waitForClients(t, h, 1)

	h.Stop()
	waitForClients(t, h, 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage() error = nil after Stop, want closed connection")
	}
}
