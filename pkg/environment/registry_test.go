package environment

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/salahayoub/qlient/pkg/eventbus"
	"github.com/salahayoub/qlient/pkg/wire"
)

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []call
	err   error
}

type call struct {
	command int
	digest  string
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, command int, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, call{command: command, digest: payload["environmentDigest"].(string)})
	return nil
}

func (f *fakeBroadcaster) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func TestSubscribeFirstListenerSendsCommand5(t *testing.T) {
	sender := &fakeBroadcaster{}
	r := New(sender, eventbus.New())

	if _, err := r.Subscribe(context.Background(), "deadbeef", func(json.RawMessage) {}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	calls := sender.Calls()
	if len(calls) != 1 || calls[0].command != wire.CommandEnvironmentSub || calls[0].digest != "deadbeef" {
		t.Fatalf("expected one command-5 subscribe call, got %+v", calls)
	}
}

func TestSecondListenerForSameDigestDoesNotResend(t *testing.T) {
	sender := &fakeBroadcaster{}
	r := New(sender, eventbus.New())

	if _, err := r.Subscribe(context.Background(), "deadbeef", func(json.RawMessage) {}); err != nil {
		t.Fatalf("subscribe 1: %v", err)
	}
	if _, err := r.Subscribe(context.Background(), "deadbeef", func(json.RawMessage) {}); err != nil {
		t.Fatalf("subscribe 2: %v", err)
	}

	if len(sender.Calls()) != 1 {
		t.Fatalf("expected exactly one subscribe broadcast for two listeners, got %d", len(sender.Calls()))
	}
}

func TestUnsubscribeOnlyLastListenerSendsCommand6(t *testing.T) {
	sender := &fakeBroadcaster{}
	r := New(sender, eventbus.New())

	h1, err := r.Subscribe(context.Background(), "deadbeef", func(json.RawMessage) {})
	if err != nil {
		t.Fatalf("subscribe 1: %v", err)
	}
	h2, err := r.Subscribe(context.Background(), "deadbeef", func(json.RawMessage) {})
	if err != nil {
		t.Fatalf("subscribe 2: %v", err)
	}

	if err := h1.Unsubscribe(context.Background()); err != nil {
		t.Fatalf("unsubscribe 1: %v", err)
	}
	if calls := sender.Calls(); len(calls) != 1 {
		t.Fatalf("expected no unsubscribe broadcast yet, got %+v", calls)
	}

	if err := h2.Unsubscribe(context.Background()); err != nil {
		t.Fatalf("unsubscribe 2: %v", err)
	}

	calls := sender.Calls()
	if len(calls) != 2 || calls[1].command != wire.CommandEnvironmentUnsub || calls[1].digest != "deadbeef" {
		t.Fatalf("expected a command-6 unsubscribe after the last listener left, got %+v", calls)
	}
}

func TestObserveDeliversToListenersAndEmitsOnBus(t *testing.T) {
	sender := &fakeBroadcaster{}
	bus := eventbus.New()
	r := New(sender, bus)

	var mu sync.Mutex
	var received []string
	if _, err := r.Subscribe(context.Background(), "deadbeef", func(data json.RawMessage) {
		mu.Lock()
		received = append(received, string(data))
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var busEvents []eventbus.Event
	bus.Subscribe("environment-data", func(e eventbus.Event) {
		busEvents = append(busEvents, e)
	})

	r.Observe(wire.EnvironmentDataEvent{
		Command:           wire.CommandEnvironmentSub,
		EnvironmentDigest: "deadbeef",
		Data:              json.RawMessage(`{"x":1}`),
	})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != `{"x":1}` {
		t.Fatalf("expected listener to receive pushed data, got %v", received)
	}
	if len(busEvents) != 1 || busEvents[0].Data["environmentDigest"] != "deadbeef" {
		t.Fatalf("expected one environment-data bus event, got %+v", busEvents)
	}
}

func TestObserveIgnoresUnrelatedDigest(t *testing.T) {
	sender := &fakeBroadcaster{}
	r := New(sender, eventbus.New())

	called := false
	if _, err := r.Subscribe(context.Background(), "deadbeef", func(json.RawMessage) {
		called = true
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	r.Observe(wire.EnvironmentDataEvent{EnvironmentDigest: "other", Data: json.RawMessage(`{}`)})

	if called {
		t.Fatalf("expected listener for a different digest not to be invoked")
	}
}

func TestSubscribeFailedBroadcastDoesNotRegisterListener(t *testing.T) {
	sender := &fakeBroadcaster{err: context.DeadlineExceeded}
	r := New(sender, eventbus.New())

	if _, err := r.Subscribe(context.Background(), "deadbeef", func(json.RawMessage) {}); err == nil {
		t.Fatalf("expected subscribe to propagate broadcast failure")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.subs["deadbeef"]) != 0 {
		t.Fatalf("expected no listener registered after a failed subscribe broadcast")
	}
}
