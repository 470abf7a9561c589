package main

import (
	"strings"
	"testing"

	"github.com/salahayoub/qlient/pkg/types"
)

func TestRenderDisconnectedShowsError(t *testing.T) {
	m := newModel()
	m.Connected = false
	m.ErrorMessage = "dial tcp: connection refused"

	out := newView().Render(m)
	if !strings.Contains(out, "disconnected") {
		t.Fatalf("expected disconnected marker, got %q", out)
	}
	if !strings.Contains(out, "connection refused") {
		t.Fatalf("expected error message rendered, got %q", out)
	}
}

func TestRenderConnectedShowsPeersAndLevel(t *testing.T) {
	m := newModel()
	m.Connected = true
	m.Status = types.StatusResponse{
		SyncLevel:  2,
		PeerCount:  2,
		OutboxSize: 5,
		Peers: []types.PeerStatus{
			{Endpoint: "ws://a:1", State: "Open"},
			{Endpoint: "ws://b:1", State: "ReconnectPending"},
		},
	}

	out := newView().Render(m)
	if !strings.Contains(out, "sync level: 2") {
		t.Fatalf("expected sync level rendered, got %q", out)
	}
	if !strings.Contains(out, "outbox size: 5") {
		t.Fatalf("expected outbox size rendered, got %q", out)
	}
	if !strings.Contains(out, "ws://a:1") || !strings.Contains(out, "Open") {
		t.Fatalf("expected peer row rendered, got %q", out)
	}
	if !strings.Contains(out, "ws://b:1") || !strings.Contains(out, "ReconnectPending") {
		t.Fatalf("expected second peer row rendered, got %q", out)
	}
}
