// Package api implements the read-only status/introspection HTTP
// surface and live-progress websocket hub described in SPEC_FULL §6,
// grounded on the teacher's internal/handlers mux wiring and
// internal/websocket.MonitorHub broadcast pattern.
package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/4nonx/syncd/internal/syncengine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub implements syncengine.Renderer by broadcasting progress ticks and
// end-of-run summaries to every connected websocket client. A client
// whose write fails is dropped rather than retried, mirroring the
// teacher's MonitorHub.Broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool), log: log}
}

// ServeWS upgrades the request to a websocket and registers the
// resulting connection as a broadcast target.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn("api: websocket upgrade failed", "err", err)
		}
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

// Tick implements syncengine.Renderer.
func (h *Hub) Tick(report syncengine.TickReport) {
	h.broadcast(report)
}

// Summary implements syncengine.Renderer.
func (h *Hub) Summary(stats *syncengine.Stats) {
	h.broadcast(stats.Snapshot())
}

func (h *Hub) broadcast(v interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteJSON(v); err != nil {
			c.Close()
			delete(h.clients, c)
		}
	}
}
