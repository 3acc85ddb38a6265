package realtime_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalarchive-ir/go-archive-client/realtime"
)

var upgrader = websocket.Upgrader{}

// wsServer upgrades every request and hands the connection to handle on its
// own goroutine. It counts connections so reconnect behaviour is observable.
type wsServer struct {
	srv   *httptest.Server
	conns atomic.Int32

	mu       sync.Mutex
	received []realtime.Message
}

func newWSServer(t *testing.T, handle func(conn *websocket.Conn, s *wsServer)) *wsServer {
	t.Helper()
	s := &wsServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns.Add(1)
		handle(conn, s)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// record reads frames into s.received until the connection closes.
func record(conn *websocket.Conn, s *wsServer) {
	defer conn.Close()
	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()
	}
}

func (s *wsServer) messages() []realtime.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.Message, len(s.received))
	copy(out, s.received)
	return out
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnectPublishesOpenState(t *testing.T) {
	server := newWSServer(t, record)

	ch := realtime.NewChannel(server.url()).
		WithBackoff(10*time.Millisecond, 50*time.Millisecond)
	defer ch.Disconnect()

	states := make(chan string, 4)
	ch.Subscribe(realtime.TopicConnection, func(msg realtime.Message) {
		if s, ok := msg.Data["state"].(string); ok {
			states <- s
		}
	})

	select {
	case s := <-states:
		assert.Equal(t, "open", s)
	case <-time.After(3 * time.Second):
		t.Fatal("no connection state published")
	}
	assert.Equal(t, realtime.StateOpen, ch.State())
}

func TestQueuedSendsFlushInOrder(t *testing.T) {
	server := newWSServer(t, record)

	ch := realtime.NewChannel(server.url()).
		WithBackoff(10*time.Millisecond, 50*time.Millisecond)
	defer ch.Disconnect()

	// Queue before any connection exists.
	ch.Send(realtime.Message{Type: "ping", Data: map[string]any{"seq": "A"}})
	ch.Send(realtime.Message{Type: "ping", Data: map[string]any{"seq": "B"}})
	ch.Send(realtime.Message{Type: "ping", Data: map[string]any{"seq": "C"}})

	ch.Connect()

	waitFor(t, func() bool { return len(server.messages()) == 3 }, "queued messages never arrived")

	got := server.messages()
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].Data["seq"])
	assert.Equal(t, "B", got[1].Data["seq"])
	assert.Equal(t, "C", got[2].Data["seq"])
	for _, msg := range got {
		assert.NotZero(t, msg.Timestamp)
	}
}

func TestOutboxCapDropsOldest(t *testing.T) {
	server := newWSServer(t, record)

	ch := realtime.NewChannel(server.url()).
		WithBackoff(10*time.Millisecond, 50*time.Millisecond).
		WithOutboxCap(2)
	defer ch.Disconnect()

	ch.Send(realtime.Message{Type: "ping", Data: map[string]any{"seq": "A"}})
	ch.Send(realtime.Message{Type: "ping", Data: map[string]any{"seq": "B"}})
	ch.Send(realtime.Message{Type: "ping", Data: map[string]any{"seq": "C"}})

	ch.Connect()

	waitFor(t, func() bool { return len(server.messages()) == 2 }, "queued messages never arrived")

	got := server.messages()
	assert.Equal(t, "B", got[0].Data["seq"])
	assert.Equal(t, "C", got[1].Data["seq"])
}

func TestDispatchByTypeInOrder(t *testing.T) {
	server := newWSServer(t, func(conn *websocket.Conn, s *wsServer) {
		defer conn.Close()
		conn.WriteJSON(realtime.Message{Type: "scrape_progress", Data: map[string]any{"seq": "1"}})
		conn.WriteJSON(realtime.Message{Type: "document_ready", Data: map[string]any{"seq": "2"}})
		conn.WriteJSON(realtime.Message{Type: "scrape_progress", Data: map[string]any{"seq": "3"}})
		// Keep the connection alive until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch := realtime.NewChannel(server.url()).
		WithBackoff(10*time.Millisecond, 50*time.Millisecond)
	defer ch.Disconnect()

	var mu sync.Mutex
	var progress, firstHandler, secondHandler []string

	ch.Subscribe("scrape_progress", func(msg realtime.Message) {
		mu.Lock()
		progress = append(progress, msg.Data["seq"].(string))
		firstHandler = append(firstHandler, "first")
		mu.Unlock()
	})
	ch.Subscribe("scrape_progress", func(msg realtime.Message) {
		mu.Lock()
		secondHandler = append(secondHandler, "second")
		mu.Unlock()
	})

	var ready []string
	ch.Subscribe("document_ready", func(msg realtime.Message) {
		mu.Lock()
		ready = append(ready, msg.Data["seq"].(string))
		mu.Unlock()
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(progress) == 2 && len(ready) == 1
	}, "messages were not dispatched")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1", "3"}, progress, "same-type messages arrive in order")
	assert.Equal(t, []string{"2"}, ready)
	assert.Len(t, secondHandler, 2, "every handler for a type is invoked")
	assert.Len(t, firstHandler, 2)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	frames := make(chan realtime.Message, 8)
	server := newWSServer(t, func(conn *websocket.Conn, s *wsServer) {
		defer conn.Close()
		for msg := range frames {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	})
	defer close(frames)

	ch := realtime.NewChannel(server.url()).
		WithBackoff(10*time.Millisecond, 50*time.Millisecond)
	defer ch.Disconnect()

	var count atomic.Int32
	unsubscribe := ch.Subscribe("scrape_progress", func(realtime.Message) {
		count.Add(1)
	})
	var witness atomic.Int32
	ch.Subscribe("scrape_progress", func(realtime.Message) {
		witness.Add(1)
	})

	frames <- realtime.Message{Type: "scrape_progress"}
	waitFor(t, func() bool { return count.Load() == 1 }, "first message not delivered")

	unsubscribe()

	frames <- realtime.Message{Type: "scrape_progress"}
	waitFor(t, func() bool { return witness.Load() == 2 }, "second message not delivered")

	assert.Equal(t, int32(1), count.Load(), "no delivery after unsubscribe")
}

func TestReconnectAfterServerDrop(t *testing.T) {
	server := newWSServer(t, func(conn *websocket.Conn, s *wsServer) {
		if s.conns.Load() == 1 {
			// First connection dies immediately to force a reconnect.
			conn.Close()
			return
		}
		record(conn, s)
	})

	ch := realtime.NewChannel(server.url()).
		WithBackoff(10*time.Millisecond, 50*time.Millisecond)
	defer ch.Disconnect()

	var sawConnecting atomic.Bool
	var opens atomic.Int32
	ch.Subscribe(realtime.TopicConnection, func(msg realtime.Message) {
		switch msg.Data["state"] {
		case "connecting":
			sawConnecting.Store(true)
		case "open":
			opens.Add(1)
		}
	})

	waitFor(t, func() bool { return server.conns.Load() >= 2 }, "channel never reconnected")
	waitFor(t, func() bool { return opens.Load() >= 2 }, "reopen was not published")
	assert.True(t, sawConnecting.Load(), "transient drop surfaces as a connecting state")

	// The rebuilt connection still carries traffic.
	ch.Send(realtime.Message{Type: "ping", Data: map[string]any{"seq": "after"}})
	waitFor(t, func() bool { return len(server.messages()) == 1 }, "send after reconnect never arrived")
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	server := newWSServer(t, record)

	ch := realtime.NewChannel(server.url()).
		WithBackoff(10*time.Millisecond, 50*time.Millisecond)

	opened := make(chan struct{}, 1)
	ch.Subscribe(realtime.TopicConnection, func(msg realtime.Message) {
		if msg.Data["state"] == "open" {
			select {
			case opened <- struct{}{}:
			default:
			}
		}
	})

	select {
	case <-opened:
	case <-time.After(3 * time.Second):
		t.Fatal("channel never opened")
	}

	ch.Disconnect()
	assert.Equal(t, realtime.StateClosed, ch.State())

	// With a 10ms backoff any reconnect attempt would land well inside this
	// window.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), server.conns.Load(), "explicit disconnect must not redial")
	assert.Equal(t, realtime.StateClosed, ch.State())

	ch.Disconnect()
	assert.Equal(t, realtime.StateClosed, ch.State())
}

func TestSendAfterDisconnectQueues(t *testing.T) {
	server := newWSServer(t, record)

	ch := realtime.NewChannel(server.url()).
		WithBackoff(10*time.Millisecond, 50*time.Millisecond)
	ch.Connect()

	waitFor(t, func() bool { return ch.State() == realtime.StateOpen }, "channel never opened")

	ch.Disconnect()
	ch.Send(realtime.Message{Type: "ping", Data: map[string]any{"seq": "later"}})

	// Queued, not sent: the server observed no frames.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, server.messages())
}
