package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/keysweep/internal/cluster"
	"github.com/dreamware/keysweep/internal/coordinator"
	"github.com/dreamware/keysweep/internal/search"
	"github.com/dreamware/keysweep/internal/termination"
	"github.com/dreamware/keysweep/internal/transport"
)

// searchView is what the peer API reads from the running node.
type searchView interface {
	Peer() int
	Progress() search.Progress
	Verdict() termination.Verdict
}

// peerServer is the HTTP API of one peer.
type peerServer struct {
	view     searchView
	registry *coordinator.Registry
	gatherer prometheus.Gatherer
	messages *transport.HTTP // nil unless the group talks over HTTP
	logger   *slog.Logger
}

// progressResponse is the body of GET /progress.
type progressResponse struct {
	search.Progress
	Peer       int     `json:"peer"`
	KeysPerSec float64 `json:"keys_per_sec"`
	State      string  `json:"state"`
}

// ownerResponse is the body of GET /plan/{key}.
type ownerResponse struct {
	Key    uint64           `json:"key"`
	Peer   cluster.PeerInfo `json:"peer"`
	Thread int              `json:"thread"`
}

func (s *peerServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/progress", s.handleProgress)
	r.Get("/plan", s.handlePlan)
	r.Get("/plan/{key}", s.handleOwner)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if s.messages != nil {
		s.messages.Register(r)
	}
	return r
}

func (s *peerServer) handleProgress(w http.ResponseWriter, _ *http.Request) {
	p := s.view.Progress()
	s.writeJSON(w, progressResponse{
		Progress:   p,
		Peer:       s.view.Peer(),
		KeysPerSec: p.Rate(),
		State:      s.view.Verdict().State.String(),
	})
}

func (s *peerServer) handlePlan(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.registry.Assignments())
}

// handleOwner answers which peer and thread search a key.
//
// Responses:
//   - 200 OK: owner found
//   - 400 Bad Request: key is not an unsigned integer
//   - 404 Not Found: key outside the key space, or owner not registered
func (s *peerServer) handleOwner(w http.ResponseWriter, r *http.Request) {
	key, err := strconv.ParseUint(chi.URLParam(r, "key"), 10, 64)
	if err != nil {
		http.Error(w, "invalid key", http.StatusBadRequest)
		return
	}
	peer, thread, err := s.registry.PeerForKey(key)
	switch {
	case errors.Is(err, coordinator.ErrOutsideSpace), errors.Is(err, coordinator.ErrUnregistered):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, ownerResponse{Key: key, Peer: peer, Thread: thread})
}

func (s *peerServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}
