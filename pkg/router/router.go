// Package router implements the request/reply half of the connection
// core: it fans logical commands out to every peer, coalesces concurrent
// identical requests by a content-derived key, and resolves or rejects
// the caller once the Quorum Comparator has an opinion.
//
// Thread Safety Guarantees
//
// Router is safe for concurrent use. A mutex guards the pending-request
// table and the per-peer open-readiness flags; HandleReply is expected to
// be invoked concurrently from each Peer Session's message handler.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/salahayoub/qlient/pkg/quorum"
	"github.com/salahayoub/qlient/pkg/wire"
)

// ErrInvalidResponses is returned when all peers have replied and no
// quorum of byte-identical replies was reached.
var ErrInvalidResponses = errors.New("router: invalid responses, no quorum reached")

// PeerSender is the subset of peersession.Session the router depends on.
// It is narrowed to an interface so tests can drive the router with a
// fake transport instead of a real websocket.
type PeerSender interface {
	Send(data []byte) error
	AddOutstanding(key string, data []byte)
	RemoveOutstanding(key string)
}

// Future is a one-shot resolver for a pending request, returned by
// SendCommand for every command other than the fire-and-forget submit.
type Future struct {
	ch   chan result
	once sync.Once
}

type result struct {
	reply json.RawMessage
	err   error
}

func newFuture() *Future {
	return &Future{ch: make(chan result, 1)}
}

func (f *Future) resolve(reply json.RawMessage) {
	f.once.Do(func() { f.ch <- result{reply: reply} })
}

func (f *Future) reject(err error) {
	f.once.Do(func() { f.ch <- result{err: err} })
}

// Wait blocks until the future resolves, rejects, or ctx is done.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case r := <-f.ch:
		return r.reply, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pendingRequest tracks one in-flight coalesced command across all peers.
type pendingRequest struct {
	key      string
	slots    [][]byte
	future   *Future
}

// Router fans commands out to a fixed set of N peers and resolves replies
// by majority agreement on the raw reply bytes.
type Router struct {
	peers []PeerSender
	n     int

	mu         sync.Mutex
	everOpen   []bool
	allOpenCh  chan struct{}
	allOpenSet bool
	pending    map[string]*pendingRequest
}

// New creates a Router over peers, in peer-index order. The index a peer
// occupies here is the slot index used for quorum vectors and must match
// the index used elsewhere (sync tracker, core wiring) for the same peer.
func New(peers []PeerSender) *Router {
	r := &Router{
		peers:     peers,
		n:         len(peers),
		everOpen:  make([]bool, len(peers)),
		allOpenCh: make(chan struct{}),
		pending:   make(map[string]*pendingRequest),
	}
	if len(peers) == 0 {
		close(r.allOpenCh)
		r.allOpenSet = true
	}
	return r
}

// MarkOpen records that peer i has reached Open at least once. Call this
// from the peer's open callback; SendCommand blocks until every peer has
// reported open at least once.
func (r *Router) MarkOpen(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= r.n || r.allOpenSet {
		return
	}
	r.everOpen[i] = true
	for _, v := range r.everOpen {
		if !v {
			return
		}
	}
	r.allOpenSet = true
	close(r.allOpenCh)
}

// waitAllOpen blocks until every peer has opened at least once, or ctx is
// done.
func (r *Router) waitAllOpen(ctx context.Context) error {
	select {
	case <-r.allOpenCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deriveKey computes command || (identity | hash | digest | messageDigest |
// environmentDigest), taking the first of those fields present, or the
// command alone if none is; this is the coalescing key shared by a request
// and every reply that answers it.
func deriveKey(command int, fields map[string]any) string {
	for _, name := range []string{"identity", "hash", "digest", "messageDigest", "environmentDigest"} {
		if v, ok := fields[name]; ok {
			return fmt.Sprintf("%d|%v", command, v)
		}
	}
	return fmt.Sprintf("%d|", command)
}

// SendCommand dispatches command with payload to every peer. Concurrent
// calls that derive the same coalescing key share one Future. Command 3
// (fire-and-forget submission) returns (nil, nil) immediately after
// broadcasting, since the wire protocol defines no reply for it.
func (r *Router) SendCommand(ctx context.Context, command int, payload map[string]any) (*Future, error) {
	if err := r.waitAllOpen(ctx); err != nil {
		return nil, err
	}

	key := deriveKey(command, payload)

	r.mu.Lock()
	if existing, ok := r.pending[key]; ok {
		r.mu.Unlock()
		return existing.future, nil
	}
	r.mu.Unlock()

	body := map[string]any{"command": command}
	for k, v := range payload {
		body[k] = v
	}
	reqBytes, err := wire.Encode(body)
	if err != nil {
		return nil, err
	}

	if command == wire.CommandSubmitTransfer {
		r.broadcastRaw(reqBytes)
		return nil, nil
	}

	pr := &pendingRequest{
		key:    key,
		slots:  make([][]byte, r.n),
		future: newFuture(),
	}

	r.mu.Lock()
	if existing, ok := r.pending[key]; ok {
		r.mu.Unlock()
		return existing.future, nil
	}
	r.pending[key] = pr
	r.mu.Unlock()

	for _, p := range r.peers {
		p.AddOutstanding(key, reqBytes)
		_ = p.Send(reqBytes)
	}

	return pr.future, nil
}

// broadcastRaw sends reqBytes to every peer without registering a
// pending request.
func (r *Router) broadcastRaw(reqBytes []byte) {
	for _, p := range r.peers {
		_ = p.Send(reqBytes)
	}
}

// Broadcast encodes command/payload and sends it to every peer without
// coalescing or awaiting a reply. Used for commands the wire protocol
// gives no single coalesced reply to: transfer submission (command 3)
// and environment subscribe/unsubscribe (commands 5/6), whose replies are
// either an ongoing stream or a best-effort ack rather than a quorum
// vote.
func (r *Router) Broadcast(ctx context.Context, command int, payload map[string]any) error {
	if err := r.waitAllOpen(ctx); err != nil {
		return err
	}

	body := map[string]any{"command": command}
	for k, v := range payload {
		body[k] = v
	}
	reqBytes, err := wire.Encode(body)
	if err != nil {
		return err
	}

	r.broadcastRaw(reqBytes)
	return nil
}

// HandleReply processes one inbound non-info message received from peer
// peerIndex. It recomputes the coalescing key from the reply's own
// fields, stores the raw reply bytes in that peer's slot, and resolves or
// rejects the pending request once enough peers have answered.
func (r *Router) HandleReply(peerIndex int, raw []byte) {
	frame, err := wire.Decode(raw)
	if err != nil {
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return
	}
	key := deriveKey(frame.Command, fields)

	r.mu.Lock()
	pr, ok := r.pending[key]
	if !ok || peerIndex < 0 || peerIndex >= len(pr.slots) {
		r.mu.Unlock()
		return
	}
	pr.slots[peerIndex] = append([]byte(nil), frame.Raw...)

	q := quorum.Size(pr.slots)
	threshold := quorum.Threshold(r.n)
	filled := 0
	for _, s := range pr.slots {
		if s != nil {
			filled++
		}
	}

	var resolveWith []byte
	var rejectNow bool

	if q >= threshold {
		resolveWith = majorityValue(pr.slots)
		delete(r.pending, key)
	} else if filled == r.n {
		rejectNow = true
		delete(r.pending, key)
	}
	r.mu.Unlock()

	if resolveWith != nil || rejectNow {
		for _, p := range r.peers {
			p.RemoveOutstanding(key)
		}
	}

	switch {
	case resolveWith != nil:
		pr.future.resolve(resolveWith)
	case rejectNow:
		pr.future.reject(ErrInvalidResponses)
	}
}

// majorityValue returns any one slot value belonging to the largest
// byte-exact-equal group in slots.
func majorityValue(slots [][]byte) []byte {
	counts := make(map[string]int)
	best := ""
	bestCount := 0
	for _, s := range slots {
		if s == nil {
			continue
		}
		k := string(s)
		counts[k]++
		if counts[k] > bestCount {
			bestCount = counts[k]
			best = k
		}
	}
	if bestCount == 0 {
		return nil
	}
	return []byte(best)
}
