// Package peersession implements one persistent, auto-reconnecting
// connection to a single computor (ledger node).
//
// Thread Safety Guarantees
//
// Session is safe for concurrent use by multiple goroutines. Each live
// connection is owned by its own dial/read goroutine pair, tagged with a
// generation number (connSeq) so a superseded goroutine recognizes a
// Terminate or SetEndpoint that raced it and exits quietly instead of
// clobbering the next connection's state. All other state is guarded by
// a plain mutex.
package peersession

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is a Peer Session's position in its open/closed lifecycle.
type State int

const (
	Connecting State = iota
	Open
	Closing
	Failed
	ReconnectPending
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Failed:
		return "Failed"
	case ReconnectPending:
		return "ReconnectPending"
	default:
		return "Unknown"
	}
}

// DefaultReconnectDelay is the fixed interval before redialing after a
// close that was not an explicit Terminate. The source specifies a
// constant delay with no exponential backoff; qlient preserves that
// rather than inventing one.
const DefaultReconnectDelay = 100 * time.Millisecond

// Options configures a Session: the fixed reconnect delay and the
// websocket handshake timeout. Zero values select the defaults.
type Options struct {
	ReconnectDelay time.Duration
	HandshakeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	return o
}

// MessageHandler receives every inbound frame's raw bytes, unparsed. It
// is invoked on the Session's internal goroutine; handlers that
// do non-trivial work should hand off to their own goroutine.
type MessageHandler func(raw []byte)

// outstanding is one entry in the replay buffer: a correlation key and the
// exact bytes that were sent (or are queued to be sent) to this peer.
type outstanding struct {
	key   string
	bytes []byte
}

// Session owns one computor connection.
type Session struct {
	mu       sync.Mutex
	endpoint string
	opts     Options
	state    State
	conn     *websocket.Conn

	outstanding []outstanding

	onMessage MessageHandler
	onOpen    func()
	onClose   func()
	onError   func(error)

	terminated bool
	reconnectTimer *time.Timer

	connSeq uint64 // bumped on every SetEndpoint/Terminate so stale readers exit

	sendMu sync.Mutex
}

// New creates a Session for endpoint. The connection is not dialed until
// Open is called.
func New(endpoint string, opts Options) *Session {
	return &Session{
		endpoint: endpoint,
		opts:     opts.withDefaults(),
		state:    Connecting,
	}
}

// OnMessage registers the callback invoked for each inbound frame.
func (s *Session) OnMessage(h MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = h
}

// OnOpen registers the callback invoked when the session transitions to Open.
func (s *Session) OnOpen(h func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpen = h
}

// OnClose registers the callback invoked on every non-terminal close.
func (s *Session) OnClose(h func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = h
}

// OnError registers the callback invoked on transport errors. Transport
// errors are never fatal; they are always followed by the reconnect path.
func (s *Session) OnError(h func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = h
}

// Endpoint returns the URL this session currently dials.
func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetEndpoint terminates the current connection and reopens against a new
// endpoint, iff the endpoint actually changed.
func (s *Session) SetEndpoint(endpoint string) {
	s.mu.Lock()
	if s.endpoint == endpoint {
		s.mu.Unlock()
		return
	}
	s.endpoint = endpoint
	s.mu.Unlock()

	s.closeConn(true)
	s.Open()
}

// Open dials the endpoint and begins the read loop. Reconnects after
// transport-level closes reuse Open internally; calling Open again while
// already Open or Connecting is a no-op.
func (s *Session) Open() {
	s.mu.Lock()
	if s.state == Open || s.state == Connecting {
		s.mu.Unlock()
		return
	}
	s.terminated = false
	s.state = Connecting
	endpoint := s.endpoint
	seq := s.connSeq
	s.mu.Unlock()

	go s.dial(endpoint, seq)
}

func (s *Session) dial(endpoint string, seq uint64) {
	u, err := url.Parse(endpoint)
	if err != nil {
		s.handleDialFailure(fmt.Errorf("peersession: invalid endpoint %q: %w", endpoint, err), seq)
		return
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.currentOpts().HandshakeTimeout}
	ctx, cancel := context.WithTimeout(context.Background(), s.currentOpts().HandshakeTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		s.handleDialFailure(err, seq)
		return
	}

	s.mu.Lock()
	if s.connSeq != seq || s.terminated {
		// A newer dial (SetEndpoint/reconnect race) or Terminate beat us here.
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state = Open
	toReplay := append([]outstanding(nil), s.outstanding...)
	onOpen := s.onOpen
	s.mu.Unlock()

	if onOpen != nil {
		onOpen()
	}

	// Replay every currently-outstanding request, in insertion order, to
	// this newly opened connection.
	for _, o := range toReplay {
		_ = s.writeRaw(o.bytes)
	}

	s.readLoop(conn, seq)
}

func (s *Session) handleDialFailure(err error, seq uint64) {
	s.mu.Lock()
	if s.connSeq != seq || s.terminated {
		s.mu.Unlock()
		return
	}
	s.state = Failed
	onErr := s.onError
	s.mu.Unlock()

	if onErr != nil {
		onErr(err)
	}
	s.scheduleReconnect(seq)
}

// readLoop blocks reading frames until the connection errs or closes,
// handing each frame's raw bytes to the message handler. It does not parse
// frames itself; a handler that cannot parse one calls CloseForReconnect,
// and the resulting read error runs the reconnect path from here.
func (s *Session) readLoop(conn *websocket.Conn, seq uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.onTransportClose(seq, err)
			return
		}

		s.mu.Lock()
		handler := s.onMessage
		s.mu.Unlock()

		if handler != nil {
			handler(data)
		}
	}
}

// onTransportClose runs whenever the read loop exits, whether due to a
// remote close, a local write error, or a parse failure upstream closing
// the socket. It is the single place that decides whether to schedule a
// reconnect.
func (s *Session) onTransportClose(seq uint64, err error) {
	s.mu.Lock()
	if s.connSeq != seq {
		s.mu.Unlock()
		return // superseded by a newer connection already
	}
	wasTerminated := s.terminated
	s.state = Closing
	onClose := s.onClose
	onErr := s.onError
	s.mu.Unlock()

	if err != nil && onErr != nil {
		onErr(err)
	}

	if wasTerminated {
		return
	}

	if onClose != nil {
		onClose()
	}
	s.scheduleReconnect(seq)
}

func (s *Session) scheduleReconnect(seq uint64) {
	s.mu.Lock()
	if s.terminated || s.connSeq != seq {
		s.mu.Unlock()
		return
	}
	s.state = ReconnectPending
	delay := s.opts.ReconnectDelay
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		stillCurrent := !s.terminated && s.connSeq == seq
		s.mu.Unlock()
		if stillCurrent {
			s.Open()
		}
	})
	s.mu.Unlock()
}

// Send transmits bytes if the session is Open. While it is not Open the
// bytes are dropped, not buffered: only payloads registered in the replay
// buffer via AddOutstanding are re-sent on the next Open. The caller owns
// deciding whether/when to register this payload there; Send itself does
// not mutate the replay buffer.
func (s *Session) Send(data []byte) error {
	return s.writeRaw(data)
}

func (s *Session) writeRaw(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	isOpen := s.state == Open
	s.mu.Unlock()

	if !isOpen || conn == nil {
		return nil // dropped; a caller's AddOutstanding entry, if any, is replayed on open
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("peersession: write: %w", err)
	}
	return nil
}

// AddOutstanding registers bytes under key in the replay buffer. Replaying
// re-sends exactly these bytes on every future Open transition until
// RemoveOutstanding(key) is called. Duplicate keys replace the prior
// entry's bytes but keep its original position.
func (s *Session) AddOutstanding(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.outstanding {
		if o.key == key {
			s.outstanding[i].bytes = data
			return
		}
	}
	s.outstanding = append(s.outstanding, outstanding{key: key, bytes: data})
}

// RemoveOutstanding deletes key from the replay buffer, if present.
func (s *Session) RemoveOutstanding(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.outstanding {
		if o.key == key {
			s.outstanding = append(s.outstanding[:i:i], s.outstanding[i+1:]...)
			return
		}
	}
}

// CloseForReconnect closes the current connection without suppressing
// the reconnect path, the trigger for an inbound frame the caller could
// not parse: a malformed frame implies peer/protocol corruption, and
// forcing a reconnect is simpler than partial-state recovery. Unlike
// Terminate, the session is not marked terminated, so the read loop's
// resulting transport error runs the normal onTransportClose ->
// scheduleReconnect path exactly as a remote-initiated close would.
func (s *Session) CloseForReconnect() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// Terminate detaches the close callback before closing so no reconnect
// fires, stops any pending reconnect timer, and closes the live
// connection if any. It is the only path that permanently ends a Session.
func (s *Session) Terminate() {
	s.mu.Lock()
	s.terminated = true
	s.connSeq++
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	conn := s.conn
	s.conn = nil
	s.state = Closing
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) closeConn(forReplace bool) {
	s.mu.Lock()
	s.connSeq++
	conn := s.conn
	s.conn = nil
	s.state = Closing
	if forReplace {
		s.terminated = true // suppress the reconnect this close would otherwise trigger
	}
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) currentOpts() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}
