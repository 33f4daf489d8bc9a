package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/4nonx/syncd/internal/cluster"
	"github.com/4nonx/syncd/internal/rendezvous"
	"github.com/4nonx/syncd/internal/syncengine"
)

// Server is the read-only status/introspection HTTP surface of
// SPEC_FULL §6: GET /status, GET /stats, GET /ws/progress. Grounded on
// the teacher's mux-based handler registration style.
type Server struct {
	Cluster *cluster.Manager
	Ring    *rendezvous.Set
	Stats   *syncengine.Stats
	Hub     *Hub
	Log     *slog.Logger

	router *mux.Router
}

func NewServer(c *cluster.Manager, ring *rendezvous.Set, stats *syncengine.Stats, hub *Hub, log *slog.Logger) *Server {
	s := &Server{Cluster: c, Ring: ring, Stats: stats, Hub: hub, Log: log}
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/ws/progress", s.handleWS)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

type statusResponse struct {
	Nodes       map[string]cluster.Node `json:"nodes"`
	RingSize    int                     `json:"ring_size"`
	HasJoined   bool                    `json:"has_joined"`
	GeneratedAt time.Time               `json:"generated_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusResponse{
		Nodes:       s.Cluster.Snapshot(),
		RingSize:    s.Ring.Len(),
		HasJoined:   s.Cluster.HasNodelist(),
		GeneratedAt: time.Now(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Stats.Snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.Hub.ServeWS(w, r)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
