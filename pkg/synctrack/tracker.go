// Package synctrack decides the client's current synchronization level
// against the network by watching signed (epoch, tick) broadcasts from
// every peer and computing how many agree.
//
// Thread Safety Guarantees
//
// Tracker is safe for concurrent use. A mutex guards per-peer status
// slots and the watchdog's progress timestamp; callers typically invoke
// Observe from each Peer Session's message handler concurrently.
package synctrack

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/salahayoub/qlient/pkg/eventbus"
	"github.com/salahayoub/qlient/pkg/quorum"
	"github.com/salahayoub/qlient/pkg/qcrypto"
)

// Info carries the parsed command-0 broadcast body before signature
// verification.
type Info struct {
	Epoch     uint32
	Tick      uint16
	Signature [64]byte
}

// SyncPayload builds the exact 6-byte buffer that is signed: big-endian
// epoch at offset 0, big-endian tick at offset 4.
func SyncPayload(epoch uint32, tick uint16) [6]byte {
	var buf [6]byte
	binary.BigEndian.PutUint32(buf[0:4], epoch)
	binary.BigEndian.PutUint16(buf[4:6], tick)
	return buf
}

// Tracker consumes verified info broadcasts from N peers and derives a
// 0..N synchronization level, resetting to 0 on full agreement so the
// next tick's rise is observable again.
type Tracker struct {
	n                int
	adminKey         [32]byte
	verifier         qcrypto.Verifier
	bus              *eventbus.Bus
	watchdogInterval time.Duration

	mu                   sync.Mutex
	perPeerLastStatus    [][]byte
	latestSyncLevel      int
	latestProgress       time.Time
	stopWatchdog         chan struct{}
	watchdogStopped      bool
}

// New creates a Tracker for n peers, authenticating broadcasts against
// adminKey. watchdogInterval is the period at which lack of progress
// demotes the sync level back to 0; pass 0 to disable the watchdog.
func New(n int, adminKey [32]byte, verifier qcrypto.Verifier, bus *eventbus.Bus, watchdogInterval time.Duration) *Tracker {
	t := &Tracker{
		n:                n,
		adminKey:         adminKey,
		verifier:         verifier,
		bus:              bus,
		watchdogInterval: watchdogInterval,
		perPeerLastStatus: make([][]byte, n),
		latestProgress:   time.Now(),
	}
	if watchdogInterval > 0 {
		t.stopWatchdog = make(chan struct{})
		go t.runWatchdog()
	}
	return t
}

// Observe processes one command-0 broadcast received from peer index i.
// A signature that fails verification is silently dropped: a lying peer
// simply fails to contribute to quorum, it cannot corrupt the tracker.
func (t *Tracker) Observe(peerIndex int, info Info) {
	if peerIndex < 0 || peerIndex >= t.n {
		return
	}
	payload := SyncPayload(info.Epoch, info.Tick)
	if !t.verifier.Verify(t.adminKey, payload[:], info.Signature) {
		return
	}

	raw := append([]byte(nil), payload[:]...)

	t.mu.Lock()
	t.perPeerLastStatus[peerIndex] = raw
	q := quorum.Size(t.perPeerLastStatus)
	var emit bool
	level := t.latestSyncLevel
	if q > t.latestSyncLevel {
		t.latestSyncLevel = q
		t.latestProgress = time.Now()
		level = q
		emit = true
	}
	fullyAgreed := q == t.n
	if fullyAgreed {
		for i := range t.perPeerLastStatus {
			t.perPeerLastStatus[i] = nil
		}
		t.latestSyncLevel = 0
	}
	t.mu.Unlock()

	if emit {
		t.bus.Emit(eventbus.Event{Topic: "info", Data: map[string]any{
			"syncStatus": level,
			"epoch":      info.Epoch,
			"tick":       info.Tick,
		}})
	}
}

// Level returns the current synchronization level.
func (t *Tracker) Level() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latestSyncLevel
}

func (t *Tracker) runWatchdog() {
	ticker := time.NewTicker(t.watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.checkProgress()
		case <-t.stopWatchdog:
			return
		}
	}
}

func (t *Tracker) checkProgress() {
	t.mu.Lock()
	stalled := time.Since(t.latestProgress) > t.watchdogInterval
	if stalled {
		t.latestSyncLevel = 0
		for i := range t.perPeerLastStatus {
			t.perPeerLastStatus[i] = nil
		}
	}
	t.mu.Unlock()

	if stalled {
		t.bus.Emit(eventbus.Event{Topic: "info", Data: map[string]any{"syncStatus": 0}})
	}
}

// Stop halts the watchdog timer. It is safe to call Stop more than once.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopWatchdog != nil && !t.watchdogStopped {
		close(t.stopWatchdog)
		t.watchdogStopped = true
	}
}
