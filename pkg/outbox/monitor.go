package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/salahayoub/qlient/pkg/eventbus"
	"github.com/salahayoub/qlient/pkg/router"
	"github.com/salahayoub/qlient/pkg/wire"
)

// StatusQuerier issues command 4 (transfer status) requests. It is
// satisfied by *router.Router; narrowed to an interface so Monitor can be
// tested without a real Router/peer fleet.
type StatusQuerier interface {
	SendCommand(ctx context.Context, command int, payload map[string]any) (*router.Future, error)
}

// Monitor watches the outbox and, whenever the sync tracker reports full
// agreement across every peer, queries each outstanding digest's
// inclusion status, emitting inclusion or rejection events and evicting
// included entries.
type Monitor struct {
	store         *Store
	bus           *eventbus.Bus
	querier       StatusQuerier
	n             int
	queryTimeout  time.Duration
}

// NewMonitor creates a Monitor over store, listening for info events on
// bus and issuing status queries through querier. n is the peer fleet
// size; a digest is only queried once an info event reports syncStatus at
// full N agreement (the source gates this at strictly-greater-than-2 for
// N=3; generalized here to >= n so the behavior is unaffected at N=3 but
// does not silently misfire if N is reconfigured).
func NewMonitor(store *Store, bus *eventbus.Bus, querier StatusQuerier, n int) *Monitor {
	return &Monitor{store: store, bus: bus, querier: querier, n: n, queryTimeout: 5 * time.Second}
}

// Start installs a one-shot info listener for every digest already
// present in the outbox, resuming monitoring left over from a prior run.
func (m *Monitor) Start() error {
	digests, err := m.store.Digests()
	if err != nil {
		return fmt.Errorf("outbox: start monitor: %w", err)
	}
	for _, d := range digests {
		m.watch(d)
	}
	return nil
}

// Put writes e to the durable store and begins monitoring its digest. The
// durable write happens before the caller submits the transfer over the
// network, so a crash between write and submission can simply be retried.
func (m *Monitor) Put(e Entry) error {
	if err := m.store.Put(e); err != nil {
		return err
	}
	m.watch(e.Digest)
	return nil
}

// watch installs a one-shot info listener for digest. The listener
// re-installs itself whenever the query outcome says to keep watching
// (not yet included, or rejected-but-not-final).
func (m *Monitor) watch(digest string) {
	m.bus.Once("info", func(ev eventbus.Event) {
		level, _ := ev.Data["syncStatus"].(int)
		if level < m.n {
			m.watch(digest) // not yet at full agreement, keep waiting
			return
		}
		m.query(digest)
	})
}

func (m *Monitor) query(digest string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.queryTimeout)
	defer cancel()

	fut, err := m.querier.SendCommand(ctx, wire.CommandTransferStatus, map[string]any{"messageDigest": digest})
	if err != nil {
		log.Printf("outbox: status query for %s failed: %v", digest, err)
		m.watch(digest)
		return
	}

	raw, err := fut.Wait(ctx)
	if err != nil {
		log.Printf("outbox: status reply for %s failed: %v", digest, err)
		m.watch(digest)
		return
	}

	var reply wire.TransferStatusReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		log.Printf("outbox: malformed status reply for %s: %v", digest, err)
		m.watch(digest)
		return
	}

	switch {
	case reply.IsRejection():
		m.bus.Emit(eventbus.Event{Topic: "rejection", Data: map[string]any{
			"digest": digest,
			"reason": reply.Reason,
		}})
		m.watch(digest) // rejection is not final: re-query on the next sync transition

	case reply.InclusionState:
		if err := m.store.Delete(digest); err != nil {
			log.Printf("outbox: failed to evict included entry %s: %v", digest, err)
		}
		m.bus.Emit(eventbus.Event{Topic: "inclusion", Data: map[string]any{
			"digest":         digest,
			"inclusionState": true,
			"tick":           reply.Tick,
			"epoch":          reply.Epoch,
		}})
		// listener already detached by Once; do not re-watch.

	default:
		m.watch(digest)
	}
}
