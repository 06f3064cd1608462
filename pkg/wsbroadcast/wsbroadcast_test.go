package wsbroadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zoobzio/replicant"
)

func newTestServer(t *testing.T, hub *Hub, namespace string) (*httptest.Server, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeHTTP(ctx, namespace, w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastReachesRegisteredConn(t *testing.T) {
	hub := NewHub()
	srv, cancel := newTestServer(t, hub, "match-1")
	defer cancel()

	client := dial(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.ConnCount("match-1") == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ConnCount("match-1") != 1 {
		t.Fatalf("expected 1 registered connection, got %d", hub.ConnCount("match-1"))
	}

	msg := replicant.FlushMessage{
		Namespace: "match-1",
		Name:      "scoreboard",
		Revision:  1,
		Ops: []replicant.Operation{
			{Path: "/home", Method: replicant.MethodOverwrite, Args: map[string]any{"newValue": float64(1)}},
		},
	}
	if err := hub.Broadcast(context.Background(), msg); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got replicant.FlushMessage
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.Namespace != msg.Namespace || got.Name != msg.Name || got.Revision != msg.Revision {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}

func TestHub_BroadcastIgnoresOtherNamespaces(t *testing.T) {
	hub := NewHub()
	srv, cancel := newTestServer(t, hub, "match-1")
	defer cancel()

	client := dial(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.ConnCount("match-1") == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	msg := replicant.FlushMessage{Namespace: "match-2", Name: "scoreboard", Revision: 1}
	if err := hub.Broadcast(context.Background(), msg); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	client.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var got replicant.FlushMessage
	if err := client.ReadJSON(&got); err == nil {
		t.Errorf("expected no message for unrelated namespace, got %+v", got)
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub()
	srv, cancel := newTestServer(t, hub, "match-1")
	defer cancel()

	client := dial(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.ConnCount("match-1") == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	client.Close()

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.ConnCount("match-1") != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ConnCount("match-1") != 0 {
		t.Errorf("expected connection to be unregistered after close, count = %d", hub.ConnCount("match-1"))
	}
}
