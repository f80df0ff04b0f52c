// Package server exposes the HTTP API: the ingestion boundary, the per-user
// read views, and job operations.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/store"
)

// Server handles the HTTP API backed by the store and event bus.
type Server struct {
	store     store.Store
	publisher events.Publisher
	logger    *slog.Logger
}

// New returns a Server backed by the given store and publisher.
func New(s store.Store, p events.Publisher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: s, publisher: p, logger: logger}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
