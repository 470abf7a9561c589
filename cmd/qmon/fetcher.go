// Package main provides qmon, a terminal dashboard that polls a running
// qlientd daemon's /status endpoint and renders current sync level, peer
// connection states, and outbox size.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/salahayoub/qlient/pkg/types"
)

// StatusFetcher polls a qlientd daemon's /status endpoint over HTTP.
type StatusFetcher struct {
	baseURL string
	client  *http.Client

	mu        sync.RWMutex
	connected bool
	lastState types.StatusResponse
}

// NewStatusFetcher creates a fetcher for the daemon at baseURL (e.g.
// "http://localhost:8080").
func NewStatusFetcher(baseURL string) *StatusFetcher {
	return &StatusFetcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Second},
	}
}

// Fetch retrieves the current status. On failure it returns the last
// known good status so the dashboard can keep rendering stale-but-useful
// data rather than blanking out on a transient hiccup.
func (f *StatusFetcher) Fetch() (types.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	resp, err := f.client.Get(f.baseURL + "/status")
	if err != nil {
		f.connected = false
		return f.lastState, fmt.Errorf("qmon: fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.connected = false
		return f.lastState, fmt.Errorf("qmon: status endpoint returned %d", resp.StatusCode)
	}

	var status types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		f.connected = false
		return f.lastState, fmt.Errorf("qmon: decode status: %w", err)
	}

	f.connected = true
	f.lastState = status
	return status, nil
}

// IsConnected returns whether the most recent Fetch succeeded.
func (f *StatusFetcher) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}
