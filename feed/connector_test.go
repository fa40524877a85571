package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tokenflow/config"
	"tokenflow/logger"
)

// feedServer is a fake upstream feed. Each accepted connection drains the
// send channel until the server closes it.
type feedServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
	dials int
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := fs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.dials++
		fs.mu.Unlock()
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (s *feedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *feedServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *feedServer) send(t *testing.T, payload string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no feed connection to send on")
	}
	conn := s.conns[len(s.conns)-1]
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (s *feedServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

// recordingSink implements both MessageHandler and Relay and records the
// interleaving of handler and relay calls.
type recordingSink struct {
	mu       sync.Mutex
	sequence []string
	statuses chan bool
	messages chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		statuses: make(chan bool, 16),
		messages: make(chan string, 16),
	}
}

func (r *recordingSink) HandleMessage(_ context.Context, raw []byte) {
	r.mu.Lock()
	r.sequence = append(r.sequence, "handle:"+string(raw))
	r.mu.Unlock()
}

func (r *recordingSink) BroadcastRaw(raw []byte) {
	r.mu.Lock()
	r.sequence = append(r.sequence, "relay:"+string(raw))
	r.mu.Unlock()
	r.messages <- string(raw)
}

func (r *recordingSink) BroadcastStatus(connected bool) {
	r.statuses <- connected
}

func waitStatus(t *testing.T, sink *recordingSink, want bool) {
	t.Helper()
	select {
	case got := <-sink.statuses:
		if got != want {
			t.Fatalf("status = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for status %v", want)
	}
}

func testConfig(url string) config.FeedConfig {
	return config.FeedConfig{
		URL:               url,
		ReconnectInterval: 50 * time.Millisecond,
		DialTimeout:       time.Second,
	}
}

func TestConnectorRelaysAfterHandling(t *testing.T) {
	server := newFeedServer(t)
	sink := newRecordingSink()

	conn := NewConnector(testConfig(server.wsURL()), sink, sink, logger.New())
	conn.Start(context.Background())
	defer conn.Stop()

	waitStatus(t, sink, true)
	if !conn.IsConnected() {
		t.Error("IsConnected false after status broadcast")
	}

	server.send(t, `{"type":"tokens","data":[]}`)

	select {
	case msg := <-sink.messages:
		if msg != `{"type":"tokens","data":[]}` {
			t.Errorf("relayed %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never relayed")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.sequence) < 2 || !strings.HasPrefix(sink.sequence[0], "handle:") || !strings.HasPrefix(sink.sequence[1], "relay:") {
		t.Errorf("handler did not run before relay: %v", sink.sequence)
	}
}

func TestConnectorReconnectsAfterDrop(t *testing.T) {
	server := newFeedServer(t)
	sink := newRecordingSink()

	conn := NewConnector(testConfig(server.wsURL()), sink, sink, logger.New())
	conn.Start(context.Background())
	defer conn.Stop()

	waitStatus(t, sink, true)
	server.dropAll()
	waitStatus(t, sink, false)
	waitStatus(t, sink, true)

	if server.dialCount() < 2 {
		t.Errorf("dials = %d, want a redial after the drop", server.dialCount())
	}
	if !conn.IsConnected() {
		t.Error("not connected after redial")
	}
}

func TestConnectorKeepsRetryingWhileDown(t *testing.T) {
	sink := newRecordingSink()

	// Nothing listens on this address; every dial attempt fails.
	conn := NewConnector(testConfig("ws://127.0.0.1:1/feed"), sink, sink, logger.New())
	conn.Start(context.Background())
	defer conn.Stop()

	select {
	case got := <-sink.statuses:
		t.Fatalf("unexpected status %v while endpoint is down", got)
	case <-time.After(200 * time.Millisecond):
	}
	if conn.IsConnected() {
		t.Error("IsConnected true while endpoint is down")
	}
}

func TestConnectorStartIsIdempotent(t *testing.T) {
	server := newFeedServer(t)
	sink := newRecordingSink()

	conn := NewConnector(testConfig(server.wsURL()), sink, sink, logger.New())
	conn.Start(context.Background())
	conn.Start(context.Background())
	defer conn.Stop()

	waitStatus(t, sink, true)

	// Give a second monitor loop time to dial if one existed.
	time.Sleep(150 * time.Millisecond)
	if server.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", server.dialCount())
	}
}

func TestConnectorStopClosesCleanly(t *testing.T) {
	server := newFeedServer(t)
	sink := newRecordingSink()

	conn := NewConnector(testConfig(server.wsURL()), sink, sink, logger.New())
	conn.Start(context.Background())
	waitStatus(t, sink, true)

	conn.Stop()
	if conn.IsConnected() {
		t.Error("still connected after Stop")
	}

	// Stopping again is a no-op.
	conn.Stop()
}
