package peersession

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer accepts every connection and echoes each received message
// back to the caller, recording how many times it has been dialed.
type echoServer struct {
	mu      sync.Mutex
	dials   int
	upgrader websocket.Upgrader
	onConn  func(*websocket.Conn)
}

func newEchoServer() *echoServer {
	return &echoServer{upgrader: websocket.Upgrader{}}
}

func (e *echoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	e.mu.Lock()
	e.dials++
	e.mu.Unlock()

	if e.onConn != nil {
		e.onConn(conn)
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			conn.Close()
			return
		}
	}
}

func (e *echoServer) dialCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dials
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForState(t *testing.T, s *Session, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, last was %s", want, s.State())
}

func TestOpenTransitionsToOpenAndFiresOnOpen(t *testing.T) {
	echo := newEchoServer()
	srv := httptest.NewServer(echo)
	defer srv.Close()

	s := New(wsURL(srv), Options{})
	opened := make(chan struct{}, 1)
	s.OnOpen(func() { opened <- struct{}{} })

	s.Open()
	defer s.Terminate()

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("expected onOpen to fire")
	}
	if s.State() != Open {
		t.Fatalf("expected Open, got %s", s.State())
	}
}

func TestSendEchoesThroughOnMessage(t *testing.T) {
	echo := newEchoServer()
	srv := httptest.NewServer(echo)
	defer srv.Close()

	s := New(wsURL(srv), Options{})
	received := make(chan []byte, 1)
	s.OnMessage(func(raw []byte) { received <- raw })

	s.Open()
	defer s.Terminate()
	waitForState(t, s, Open, time.Second)

	if err := s.Send([]byte(`{"hello":"world"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != `{"hello":"world"}` {
			t.Fatalf("unexpected echo: %s", data)
		}
	case <-time.After(time.Second):
		t.Fatal("expected echoed message")
	}
}

func TestReconnectsAfterServerDropAndReplaysOutstanding(t *testing.T) {
	echo := newEchoServer()
	srv := httptest.NewServer(echo)
	defer srv.Close()

	s := New(wsURL(srv), Options{ReconnectDelay: 10 * time.Millisecond})
	defer s.Terminate()

	var replayedMu sync.Mutex
	var replayed [][]byte
	s.OnMessage(func(raw []byte) {
		replayedMu.Lock()
		replayed = append(replayed, append([]byte(nil), raw...))
		replayedMu.Unlock()
	})

	s.Open()
	waitForState(t, s, Open, time.Second)

	s.AddOutstanding("req-1", []byte(`{"command":1}`))
	if err := s.Send([]byte(`{"command":1}`)); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Force the underlying connection closed to simulate a peer drop.
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}

	waitForState(t, s, ReconnectPending, time.Second)
	waitForState(t, s, Open, time.Second)

	if echo.dialCount() < 2 {
		t.Fatalf("expected at least 2 dials after reconnect, got %d", echo.dialCount())
	}

	deadline := time.Now().Add(time.Second)
	for {
		replayedMu.Lock()
		n := len(replayed)
		replayedMu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected outstanding request to be replayed on reopen, got %d messages", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseForReconnectTriggersReconnectUnlikeTerminate(t *testing.T) {
	echo := newEchoServer()
	srv := httptest.NewServer(echo)
	defer srv.Close()

	s := New(wsURL(srv), Options{ReconnectDelay: 10 * time.Millisecond})
	defer s.Terminate()

	s.Open()
	waitForState(t, s, Open, time.Second)
	dialsBefore := echo.dialCount()

	s.CloseForReconnect()

	waitForState(t, s, ReconnectPending, time.Second)
	waitForState(t, s, Open, time.Second)

	if echo.dialCount() <= dialsBefore {
		t.Fatalf("expected a redial after CloseForReconnect, dials before=%d after=%d", dialsBefore, echo.dialCount())
	}
}

func TestTerminateSuppressesReconnect(t *testing.T) {
	echo := newEchoServer()
	srv := httptest.NewServer(echo)
	defer srv.Close()

	s := New(wsURL(srv), Options{ReconnectDelay: 10 * time.Millisecond})
	s.Open()
	waitForState(t, s, Open, time.Second)

	s.Terminate()
	time.Sleep(50 * time.Millisecond)

	if s.State() == Open {
		t.Fatalf("expected terminated session to stay closed")
	}
}

func TestSetEndpointRedialsNewHost(t *testing.T) {
	echoA := newEchoServer()
	srvA := httptest.NewServer(echoA)
	defer srvA.Close()
	echoB := newEchoServer()
	srvB := httptest.NewServer(echoB)
	defer srvB.Close()

	s := New(wsURL(srvA), Options{ReconnectDelay: 10 * time.Millisecond})
	s.Open()
	defer s.Terminate()
	waitForState(t, s, Open, time.Second)

	s.SetEndpoint(wsURL(srvB))
	waitForState(t, s, Open, time.Second)

	if s.Endpoint() != wsURL(srvB) {
		t.Fatalf("expected endpoint to update")
	}
	if echoB.dialCount() < 1 {
		t.Fatalf("expected new endpoint to be dialed")
	}
}
