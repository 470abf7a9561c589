package main

import (
	"encoding/json"
	"net/http"

	"github.com/salahayoub/qlient/pkg/core"
)

// StatusHandler handles HTTP status requests.
type StatusHandler struct {
	core *core.Core
}

// NewStatusHandler creates a new StatusHandler over a running core.
func NewStatusHandler(c *core.Core) *StatusHandler {
	return &StatusHandler{core: c}
}

// ServeHTTP handles GET /status requests, returning JSON with the
// current sync level, per-peer connection state, and outbox size.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, err := h.core.Status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}
