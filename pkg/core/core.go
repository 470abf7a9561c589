// Package core wires the six collaborating components — Peer Sessions,
// the Sync Tracker, the Request Router, the Outbox Monitor, the Event
// Bus, and the Quorum Comparator they all share — into a single
// connection core, the same role the teacher's raft.Raft plays for a
// consensus cluster.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/salahayoub/qlient/pkg/environment"
	"github.com/salahayoub/qlient/pkg/eventbus"
	"github.com/salahayoub/qlient/pkg/outbox"
	"github.com/salahayoub/qlient/pkg/peersession"
	"github.com/salahayoub/qlient/pkg/qcrypto"
	"github.com/salahayoub/qlient/pkg/router"
	"github.com/salahayoub/qlient/pkg/synctrack"
	"github.com/salahayoub/qlient/pkg/transfer"
	"github.com/salahayoub/qlient/pkg/types"
	"github.com/salahayoub/qlient/pkg/wire"
)

// ComputorConfig is one peer's dial target and per-peer options.
type ComputorConfig struct {
	URL            string
	ReconnectDelay time.Duration
}

// Config is the connection core's full configuration surface.
type Config struct {
	Computors               []ComputorConfig
	SynchronizationInterval time.Duration
	AdminPublicKey          [32]byte
	DBPath                  string
}

// Core owns every peer connection, the sync/request/outbox subsystems,
// and the shared event bus.
type Core struct {
	cfg         Config
	sessions    []*peersession.Session
	tracker     *synctrack.Tracker
	router      *router.Router
	store       *outbox.Store
	monitor     *outbox.Monitor
	environment *environment.Registry
	bus         *eventbus.Bus
}

// New constructs a Core from cfg. The durable outbox store is opened at
// cfg.DBPath; callers must call Stop to release it.
func New(cfg Config) (*Core, error) {
	if len(cfg.Computors) == 0 {
		return nil, fmt.Errorf("core: at least one computor is required")
	}

	store, err := outbox.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("core: open outbox store: %w", err)
	}

	bus := eventbus.New()

	sessions := make([]*peersession.Session, len(cfg.Computors))
	peerSenders := make([]router.PeerSender, len(cfg.Computors))
	for i, c := range cfg.Computors {
		s := peersession.New(c.URL, peersession.Options{ReconnectDelay: c.ReconnectDelay})
		sessions[i] = s
		peerSenders[i] = s
	}

	rt := router.New(peerSenders)
	tracker := synctrack.New(len(sessions), cfg.AdminPublicKey, qcrypto.NewVerifier(), bus, cfg.SynchronizationInterval)
	monitor := outbox.NewMonitor(store, bus, rt, len(sessions))
	env := environment.New(rt, bus)

	c := &Core{
		cfg:         cfg,
		sessions:    sessions,
		tracker:     tracker,
		router:      rt,
		store:       store,
		monitor:     monitor,
		environment: env,
		bus:         bus,
	}

	for i, s := range sessions {
		i := i
		s.OnOpen(func() {
			bus.Emit(eventbus.Event{Topic: "open", Data: map[string]any{"peerIndex": i}})
			rt.MarkOpen(i)
		})
		s.OnClose(func() {
			bus.Emit(eventbus.Event{Topic: "close", Data: map[string]any{"peerIndex": i}})
		})
		s.OnError(func(err error) {
			bus.Emit(eventbus.Event{Topic: "error", Data: map[string]any{"peerIndex": i, "error": err.Error()}})
		})
		s.OnMessage(func(raw []byte) {
			c.dispatch(i, raw)
		})
	}

	return c, nil
}

// dispatch classifies one inbound frame by command tag: command 0 feeds
// the Sync Tracker, command 5 feeds the Environment Subscription
// registry, everything else feeds the Request Router. An unparseable
// frame is frame corruption (spec: "close that peer's socket; rely on
// reconnect") rather than a silently-dropped message, so it forces that
// peer's session closed instead of returning quietly.
func (c *Core) dispatch(peerIndex int, raw []byte) {
	frame, err := wire.Decode(raw)
	if err != nil {
		if peerIndex >= 0 && peerIndex < len(c.sessions) {
			c.sessions[peerIndex].CloseForReconnect()
		}
		return
	}

	switch frame.Command {
	case wire.CommandInfo:
		var msg wire.InfoMsg
		if err := json.Unmarshal(frame.Raw, &msg); err != nil {
			return
		}
		sig, err := msg.DecodeSignature()
		if err != nil {
			return
		}
		c.tracker.Observe(peerIndex, synctrack.Info{Epoch: msg.Epoch, Tick: msg.Tick, Signature: sig})
		return

	case wire.CommandEnvironmentSub:
		var ev wire.EnvironmentDataEvent
		if err := json.Unmarshal(frame.Raw, &ev); err != nil {
			return
		}
		c.environment.Observe(ev)
		return
	}

	c.router.HandleReply(peerIndex, raw)
}

// Start dials every peer session and begins monitoring any outbox
// entries left over from a previous run.
func (c *Core) Start() error {
	for _, s := range c.sessions {
		s.Open()
	}
	return c.monitor.Start()
}

// Stop terminates every peer session and the sync tracker's watchdog,
// then closes the durable outbox store. In-flight futures are left
// unresolved by design (see the open-question resolutions in DESIGN.md);
// callers relying on SendCommand during shutdown must use their own
// context timeout.
func (c *Core) Stop() error {
	for _, s := range c.sessions {
		s.Terminate()
	}
	c.tracker.Stop()
	return c.store.Close()
}

// SendCommand dispatches a logical command to every peer and returns its
// coalesced, quorum-resolved future.
func (c *Core) SendCommand(ctx context.Context, command int, payload map[string]any) (*router.Future, error) {
	return c.router.SendCommand(ctx, command, payload)
}

// SubmitTransfer builds a transfer with b, durably records it in the
// outbox before broadcasting, then fires the fire-and-forget command 3.
func (c *Core) SubmitTransfer(ctx context.Context, b transfer.Builder, req transfer.BuildRequest) (transfer.BuildResult, error) {
	result, err := b.Build(req)
	if err != nil {
		return transfer.BuildResult{}, err
	}

	if err := c.monitor.Put(outbox.Entry{
		Digest:    result.MessageDigest,
		Message:   result.Message,
		Signature: result.Signature,
	}); err != nil {
		return transfer.BuildResult{}, fmt.Errorf("core: write-ahead outbox entry: %w", err)
	}

	if _, err := c.router.SendCommand(ctx, wire.CommandSubmitTransfer, map[string]any{
		"message":   result.Message,
		"signature": result.Signature,
	}); err != nil {
		return transfer.BuildResult{}, err
	}

	return result, nil
}

// Subscribe registers a listener for core events (info, open, close,
// error, inclusion, rejection, environment-data).
func (c *Core) Subscribe(topic string, listener eventbus.Listener) eventbus.Handle {
	return c.bus.Subscribe(topic, listener)
}

// SubscribeEnvironment registers listener for every command-5 data push
// tagged with environmentDigest. If this is the first listener for that
// digest, the subscribe request (command 5) is sent to every peer before
// this call returns.
func (c *Core) SubscribeEnvironment(ctx context.Context, environmentDigest string, listener environment.Listener) (environment.Handle, error) {
	return c.environment.Subscribe(ctx, environmentDigest, listener)
}

// UnsubscribeEnvironment removes a listener previously returned by
// SubscribeEnvironment. If it was the last listener for its digest, the
// unsubscribe request (command 6) is sent to every peer.
func (c *Core) UnsubscribeEnvironment(ctx context.Context, h environment.Handle) error {
	return h.Unsubscribe(ctx)
}

// Status reports the current sync level, per-peer connection state, and
// outbox size, the payload behind cmd/qlientd's /status endpoint.
func (c *Core) Status() (types.StatusResponse, error) {
	digests, err := c.store.Digests()
	if err != nil {
		return types.StatusResponse{}, err
	}

	peers := make([]types.PeerStatus, len(c.sessions))
	for i, s := range c.sessions {
		peers[i] = types.PeerStatus{Endpoint: s.Endpoint(), State: s.State().String()}
	}

	return types.StatusResponse{
		SyncLevel:  c.tracker.Level(),
		PeerCount:  len(c.sessions),
		Peers:      peers,
		OutboxSize: len(digests),
	}, nil
}
