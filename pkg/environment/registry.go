// Package environment implements the Environment Subscription component:
// reference-counted listeners over a server-side streaming topic
// identified by a 32-byte digest. The first Subscribe for a digest sends
// the peer protocol's subscribe request (command 5); the last Unsubscribe
// sends the unsubscribe request (command 6).
package environment

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/salahayoub/qlient/pkg/eventbus"
	"github.com/salahayoub/qlient/pkg/wire"
)

// Listener receives every data push for one environment digest.
type Listener func(data json.RawMessage)

// Broadcaster is the subset of *router.Router the registry depends on. It
// is narrowed to an interface so tests can drive it with a fake.
type Broadcaster interface {
	Broadcast(ctx context.Context, command int, payload map[string]any) error
}

type subscriber struct {
	id       uint64
	listener Listener
}

// Registry owns every environment digest's listener set.
//
// Thread Safety Guarantees
//
// Registry is safe for concurrent use; a mutex guards the listener table.
type Registry struct {
	sender Broadcaster
	bus    *eventbus.Bus

	mu     sync.Mutex
	nextID uint64
	subs   map[string][]subscriber
}

// New creates a Registry that broadcasts subscribe/unsubscribe requests
// through sender and mirrors every data push onto bus under the
// "environment-data" topic.
func New(sender Broadcaster, bus *eventbus.Bus) *Registry {
	return &Registry{
		sender: sender,
		bus:    bus,
		subs:   make(map[string][]subscriber),
	}
}

// Handle unsubscribes one listener previously registered with Subscribe.
type Handle struct {
	registry *Registry
	digest   string
	id       uint64
}

// Unsubscribe removes this listener. If it was the last listener for its
// environment digest, the registry sends command 6 to every peer.
func (h Handle) Unsubscribe(ctx context.Context) error {
	if h.registry == nil {
		return nil
	}
	return h.registry.unsubscribe(ctx, h.digest, h.id)
}

// Subscribe registers listener for environmentDigest's streaming data
// pushes. If this is the first listener registered for that digest, it
// sends command 5 to every peer before returning; if that send fails,
// the listener is not registered.
func (r *Registry) Subscribe(ctx context.Context, environmentDigest string, listener Listener) (Handle, error) {
	r.mu.Lock()
	wasEmpty := len(r.subs[environmentDigest]) == 0
	r.nextID++
	id := r.nextID
	r.subs[environmentDigest] = append(r.subs[environmentDigest], subscriber{id: id, listener: listener})
	r.mu.Unlock()

	if wasEmpty {
		if err := r.sender.Broadcast(ctx, wire.CommandEnvironmentSub, map[string]any{"environmentDigest": environmentDigest}); err != nil {
			r.mu.Lock()
			r.removeLocked(environmentDigest, id)
			r.mu.Unlock()
			return Handle{}, err
		}
	}

	return Handle{registry: r, digest: environmentDigest, id: id}, nil
}

func (r *Registry) unsubscribe(ctx context.Context, digest string, id uint64) error {
	r.mu.Lock()
	lastRemoved := r.removeLocked(digest, id)
	r.mu.Unlock()

	if lastRemoved {
		return r.sender.Broadcast(ctx, wire.CommandEnvironmentUnsub, map[string]any{"environmentDigest": digest})
	}
	return nil
}

// removeLocked deletes subscriber id from digest's listener set and
// reports whether it was the last one removed. Caller must hold r.mu.
func (r *Registry) removeLocked(digest string, id uint64) bool {
	subs := r.subs[digest]
	idx := -1
	for i, s := range subs {
		if s.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	subs = append(subs[:idx:idx], subs[idx+1:]...)
	if len(subs) == 0 {
		delete(r.subs, digest)
		return true
	}
	r.subs[digest] = subs
	return false
}

// Observe delivers one inbound command-5 data push to every listener
// registered for its environment digest, and mirrors it onto the event
// bus under the "environment-data" topic for callers that prefer a
// single subscription point over per-digest Subscribe calls.
func (r *Registry) Observe(ev wire.EnvironmentDataEvent) {
	r.mu.Lock()
	subs := append([]subscriber(nil), r.subs[ev.EnvironmentDigest]...)
	r.mu.Unlock()

	for _, s := range subs {
		s.listener(ev.Data)
	}

	if r.bus != nil {
		r.bus.Emit(eventbus.Event{Topic: "environment-data", Data: map[string]any{
			"environmentDigest": ev.EnvironmentDigest,
			"data":              ev.Data,
		}})
	}
}
