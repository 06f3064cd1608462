// Package wsbroadcast implements replicant.Broadcaster over raw
// WebSocket connections using gorilla/websocket, for deployments that
// want direct client fan-out without a message broker in between.
package wsbroadcast

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zoobzio/replicant"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Hub implements replicant.Broadcaster over a set of live WebSocket
// connections, grouped by namespace.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[string]*conn
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[string]*conn)}
}

// ServeHTTP upgrades r to a WebSocket connection and registers it under
// namespace until the connection closes or ctx is canceled. It blocks for
// the lifetime of the connection.
func (h *Hub) ServeHTTP(ctx context.Context, namespace string, w http.ResponseWriter, r *http.Request) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &conn{id: uuid.NewString(), ws: ws}
	h.register(namespace, c)
	defer h.unregister(namespace, c)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (h *Hub) register(namespace string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[namespace] == nil {
		h.conns[namespace] = make(map[string]*conn)
	}
	h.conns[namespace][c.id] = c
}

func (h *Hub) unregister(namespace string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[namespace], c.id)
	c.ws.Close()
}

// ConnCount reports how many connections are currently registered under
// namespace.
func (h *Hub) ConnCount(namespace string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[namespace])
}

// Broadcast implements replicant.Broadcaster, fanning msg out to every
// connection registered under msg.Namespace.
func (h *Hub) Broadcast(_ context.Context, msg replicant.FlushMessage) error {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns[msg.Namespace]))
	for _, c := range h.conns[msg.Namespace] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var firstErr error
	for _, c := range conns {
		if err := c.send(msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ replicant.Broadcaster = (*Hub)(nil)
