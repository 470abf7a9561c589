package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/salahayoub/qlient/pkg/types"
)

func newStatusServer(t *testing.T, status types.StatusResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchReturnsDecodedStatus(t *testing.T) {
	want := types.StatusResponse{
		SyncLevel:  2,
		PeerCount:  3,
		OutboxSize: 1,
		Peers: []types.PeerStatus{
			{Endpoint: "ws://a:1", State: "Open"},
		},
	}
	srv := newStatusServer(t, want)

	f := NewStatusFetcher(srv.URL)
	got, err := f.Fetch()
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.SyncLevel != want.SyncLevel || got.PeerCount != want.PeerCount || got.OutboxSize != want.OutboxSize {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if !f.IsConnected() {
		t.Fatalf("expected connected after successful fetch")
	}
}

func TestFetchReturnsLastKnownGoodOnFailure(t *testing.T) {
	want := types.StatusResponse{SyncLevel: 3}
	srv := newStatusServer(t, want)

	f := NewStatusFetcher(srv.URL)
	if _, err := f.Fetch(); err != nil {
		t.Fatalf("initial fetch: %v", err)
	}

	srv.Close()

	got, err := f.Fetch()
	if err == nil {
		t.Fatalf("expected error after server close")
	}
	if got.SyncLevel != want.SyncLevel {
		t.Fatalf("expected stale status preserved, got %+v", got)
	}
	if f.IsConnected() {
		t.Fatalf("expected disconnected after failed fetch")
	}
}

func TestFetchTrimsTrailingSlash(t *testing.T) {
	srv := newStatusServer(t, types.StatusResponse{SyncLevel: 1})
	f := NewStatusFetcher(srv.URL + "/")
	if _, err := f.Fetch(); err != nil {
		t.Fatalf("fetch: %v", err)
	}
}
