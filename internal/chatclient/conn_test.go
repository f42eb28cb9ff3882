package chatclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"communitychat/internal/protocol"
)

// wsHarness is a minimal in-process message server: it records inbound
// frames and can push frames, refuse connections and drop clients.
type wsHarness struct {
	t        *testing.T
	upgrader websocket.Upgrader
	srv      *httptest.Server
	frames   chan protocol.Envelope
	refuse   atomic.Bool

	mu     sync.Mutex
	conns  []*websocket.Conn
	tokens []string
}

func newWSHarness(t *testing.T) *wsHarness {
	h := &wsHarness{t: t, frames: make(chan protocol.Envelope, 64)}
	h.srv = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *wsHarness) serve(w http.ResponseWriter, r *http.Request) {
	if h.refuse.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conns = append(h.conns, ws)
	h.tokens = append(h.tokens, r.URL.Query().Get("token"))
	h.mu.Unlock()

	for {
		var env protocol.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}
		h.frames <- env
	}
}

func (h *wsHarness) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

func (h *wsHarness) connCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *wsHarness) push(event string, payload any) {
	h.mu.Lock()
	ws := h.conns[len(h.conns)-1]
	h.mu.Unlock()
	frame, err := protocol.Encode(event, payload)
	require.NoError(h.t, err)
	require.NoError(h.t, ws.WriteMessage(websocket.TextMessage, frame))
}

func (h *wsHarness) dropLatest() {
	h.mu.Lock()
	ws := h.conns[len(h.conns)-1]
	h.mu.Unlock()
	ws.Close()
}

func (h *wsHarness) nextFrame(timeout time.Duration) (protocol.Envelope, bool) {
	select {
	case env := <-h.frames:
		return env, true
	case <-time.After(timeout):
		return protocol.Envelope{}, false
	}
}

func newTestConn(t *testing.T, wsURL string) *Conn {
	c, err := NewConn(wsURL, Account{Username: "alice", Token: "tok-alice"}, zerolog.Nop())
	require.NoError(t, err)
	// Shrink the production backoff so tests run fast.
	c.delayStep = 5 * time.Millisecond
	c.delayMax = 20 * time.Millisecond
	c.overallTimeout = 2 * time.Second
	t.Cleanup(c.Disconnect)
	return c
}

func collect(c *Conn, types ...EventType) chan Event {
	ch := make(chan Event, 32)
	for _, et := range types {
		c.OnEvent(et, func(ev Event) { ch <- ev })
	}
	return ch
}

func waitEvent(t *testing.T, ch chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestConnectEmitsConnectedAndAuthenticates(t *testing.T) {
	h := newWSHarness(t)
	c := newTestConn(t, h.url())
	events := collect(c, EventConnected)

	c.Connect()
	waitEvent(t, events, EventConnected)

	assert.Equal(t, StateConnected, c.State())
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.tokens, 1)
	assert.Equal(t, "tok-alice", h.tokens[0], "dial must carry the session token")
}

func TestSendDeliversEnvelope(t *testing.T) {
	h := newWSHarness(t)
	c := newTestConn(t, h.url())
	events := collect(c, EventConnected)
	c.Connect()
	waitEvent(t, events, EventConnected)

	msg := &protocol.ChatMessage{From: "alice", To: "bob", Body: "hello", Timestamp: time.Now().UTC()}
	require.NoError(t, c.Send(protocol.EventMessage, msg))

	env, ok := h.nextFrame(2 * time.Second)
	require.True(t, ok, "server never received the frame")
	assert.Equal(t, protocol.EventMessage, env.Event)

	var got protocol.ChatMessage
	require.NoError(t, env.Decode(&got))
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, "bob", got.To)
}

func TestInboundMessageDispatched(t *testing.T) {
	h := newWSHarness(t)
	c := newTestConn(t, h.url())
	events := collect(c, EventConnected, EventMessage)
	c.Connect()
	waitEvent(t, events, EventConnected)

	h.push(protocol.EventMessage, &protocol.ChatMessage{From: "bob", To: "alice", Body: "hi"})

	ev := waitEvent(t, events, EventMessage)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "bob", ev.Message.From)
	assert.Equal(t, "hi", ev.Message.Body)
}

func TestSendWithoutConnectionIsDropped(t *testing.T) {
	h := newWSHarness(t)
	c := newTestConn(t, h.url())

	err := c.Send(protocol.EventMessage, &protocol.ChatMessage{Body: "lost"})
	assert.ErrorIs(t, err, ErrSendDropped)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newWSHarness(t)
	c := newTestConn(t, h.url())
	events := collect(c, EventConnected)
	c.Connect()
	waitEvent(t, events, EventConnected)

	c.Disconnect()
	c.Disconnect() // second call must be a safe no-op
	assert.Equal(t, StateDisconnected, c.State())

	err := c.Send(protocol.EventMessage, &protocol.ChatMessage{Body: "late"})
	assert.ErrorIs(t, err, ErrSendDropped)
}

func TestRejoinOnReconnect(t *testing.T) {
	h := newWSHarness(t)
	c := newTestConn(t, h.url())
	c.SetRejoin(func() *protocol.Room {
		return &protocol.Room{Username: "alice", OtherUser: "bob"}
	})
	events := collect(c, EventConnected, EventDisconnected)

	c.Connect()
	waitEvent(t, events, EventConnected)

	// First connect also rejoins: drain that frame.
	env, ok := h.nextFrame(2 * time.Second)
	require.True(t, ok)
	require.Equal(t, protocol.EventJoin, env.Event)

	h.dropLatest()
	waitEvent(t, events, EventDisconnected)
	waitEvent(t, events, EventConnected)

	env, ok = h.nextFrame(2 * time.Second)
	require.True(t, ok, "no join after reconnect")
	assert.Equal(t, protocol.EventJoin, env.Event)

	var room protocol.Room
	require.NoError(t, env.Decode(&room))
	assert.Equal(t, "bob", room.OtherUser)
	assert.GreaterOrEqual(t, h.connCount(), 2)
}

func TestReconnectGivesUpAfterBudget(t *testing.T) {
	h := newWSHarness(t)
	h.refuse.Store(true)

	c := newTestConn(t, h.url())
	events := collect(c, EventConnectionError)

	c.Connect()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Err == ErrConnectionFailed {
				assert.Equal(t, StateDisconnected, c.State())
				return
			}
			// per-attempt dial errors arrive first
		case <-deadline:
			t.Fatal("connection never reported as failed")
		}
	}
}
