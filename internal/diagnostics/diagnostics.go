// Package diagnostics exposes a small read-only HTTP surface for
// inspecting a running mesh node: router/bloom fill rate, peer table
// size, session count, and store-and-forward cache length. Intended for the relay
// daemon and local dev harness, never shipped in the mobile app.
package diagnostics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Snapshot is the data diagnostics reports; the caller (the node's own
// wiring code) is responsible for assembling a fresh one per request.
type Snapshot struct {
	PeerCount       int       `json:"peer_count"`
	LivePeerCount   int       `json:"live_peer_count"`
	SessionCount    int       `json:"session_count"`
	BloomFillRate   float64   `json:"bloom_fill_rate"`
	StoreForwardLen int       `json:"store_forward_len"`
	StartedAt       time.Time `json:"started_at"`
}

// SnapshotFunc produces a fresh Snapshot on demand.
type SnapshotFunc func() Snapshot

// NewRouter builds the diagnostics HTTP surface. snapshot is called once
// per request to GET /status.
func NewRouter(snapshot SnapshotFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		snap := snapshot()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Error().Err(err).Msg("[diagnostics] encode status")
		}
	})

	return r
}
