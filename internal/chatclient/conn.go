package chatclient

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"communitychat/internal/protocol"
)

// State is the connection lifecycle, owned exclusively by Conn.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// EventType names the inbound events handlers can subscribe to.
type EventType string

const (
	EventConnected       EventType = "connected"
	EventDisconnected    EventType = "disconnected"
	EventMessage         EventType = "message"
	EventConnectionError EventType = "connectionError"
)

// Event is one inbound occurrence. Message is set for EventMessage, Err and
// Attempt for EventConnectionError.
type Event struct {
	Type    EventType
	Message *protocol.ChatMessage
	Err     error
	Attempt int
}

type EventHandler func(Event)

// Reconnection policy: five attempts with linearly growing delay capped at
// five seconds, and one minute overall before the connection counts as
// failed.
const (
	reconnectAttempts = 5
	reconnectDelay    = time.Second
	reconnectDelayMax = 5 * time.Second
	connectTimeout    = 60 * time.Second

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Conn owns the single persistent connection to the message server.
// Transport errors never surface to callers directly: they turn into state
// transitions observable through OnEvent. All handlers run on one dispatch
// goroutine, one event at a time.
type Conn struct {
	url    string
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu       sync.Mutex
	ws       *websocket.Conn
	state    State
	closed   bool
	handlers map[EventType][]EventHandler
	rejoin   func() *protocol.Room

	writeMu sync.Mutex

	dispatchOnce sync.Once
	events       chan Event
	done         chan struct{}

	// Overridable in tests; production uses the constants above.
	maxAttempts    int
	delayStep      time.Duration
	delayMax       time.Duration
	overallTimeout time.Duration
}

// NewConn prepares a connection manager for the given websocket endpoint.
// The account token authenticates the dial. Nothing is dialed until
// Connect.
func NewConn(wsURL string, acct Account, log zerolog.Logger) (*Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", acct.Token)
	u.RawQuery = q.Encode()

	return &Conn{
		url:            u.String(),
		dialer:         websocket.DefaultDialer,
		log:            log,
		handlers:       make(map[EventType][]EventHandler),
		events:         make(chan Event, 64),
		done:           make(chan struct{}),
		maxAttempts:    reconnectAttempts,
		delayStep:      reconnectDelay,
		delayMax:       reconnectDelayMax,
		overallTimeout: connectTimeout,
	}, nil
}

// OnEvent registers a handler for an inbound event type.
func (c *Conn) OnEvent(t EventType, h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = append(c.handlers[t], h)
}

// SetRejoin installs the callback asked for the active conversation after
// every successful (re)connect. The server keeps room membership only for
// the life of a connection, so the manager re-emits join on reconnect.
func (c *Conn) SetRejoin(f func() *protocol.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejoin = f
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop. Dial failures do not surface here:
// the manager moves into reconnecting on its own and reports through
// connectionError events.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.closed || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.dispatchOnce.Do(func() { go c.dispatchLoop() })
	go c.run()
}

// Disconnect closes the transport. Safe to call from any state, any number
// of times.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateDisconnected
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	close(c.done)
	if ws != nil {
		c.writeMu.Lock()
		ws.SetWriteDeadline(time.Now().Add(writeWait))
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		ws.Close()
	}
}

// Send emits an outgoing event. When the connection is down the event is
// dropped and ErrSendDropped returned: sends are at-most-once, with no
// buffering or replay.
func (c *Conn) Send(event string, payload any) error {
	c.mu.Lock()
	ws, state := c.ws, c.state
	c.mu.Unlock()

	if state != StateConnected || ws == nil {
		c.log.Warn().Str("event", event).Msg("send dropped: not connected")
		return ErrSendDropped
	}

	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		// The connection died under us; the read loop will notice and
		// reconnect. The event itself is lost, same as any other
		// not-connected send.
		return fmt.Errorf("%w: %v", ErrSendDropped, err)
	}
	return nil
}

func (c *Conn) run() {
	for {
		ws := c.establish()
		if ws == nil {
			if c.isClosed() {
				return
			}
			c.setState(StateDisconnected)
			c.emit(Event{Type: EventConnectionError, Err: ErrConnectionFailed})
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			ws.Close()
			return
		}
		c.ws = ws
		c.state = StateConnected
		rejoin := c.rejoin
		c.mu.Unlock()

		c.emit(Event{Type: EventConnected})
		if rejoin != nil {
			if room := rejoin(); room != nil {
				if err := c.Send(protocol.EventJoin, room); err != nil {
					c.log.Warn().Err(err).Msg("rejoin failed")
				}
			}
		}

		c.readLoop(ws)

		if c.isClosed() {
			return
		}
		c.setState(StateReconnecting)
		c.emit(Event{Type: EventDisconnected})
	}
}

// establish dials until it succeeds, the attempt budget runs out, the
// overall timeout passes, or the manager is closed.
func (c *Conn) establish() *websocket.Conn {
	deadline := time.Now().Add(c.overallTimeout)

	for attempt := 0; attempt <= c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.delayStep
			if delay > c.delayMax {
				delay = c.delayMax
			}
			select {
			case <-c.done:
				return nil
			case <-time.After(delay):
			}
		}
		if time.Now().After(deadline) {
			return nil
		}

		ws, _, err := c.dialer.Dial(c.url, nil)
		if err == nil {
			return ws
		}

		c.log.Warn().Err(err).Int("attempt", attempt).Msg("dial failed")
		c.setState(StateReconnecting)
		c.emit(Event{Type: EventConnectionError, Err: err, Attempt: attempt})
	}
	return nil
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	ws.SetPingHandler(func(data string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			ws.Close()
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Warn().Msg("malformed frame dropped")
			continue
		}
		if env.Event != protocol.EventMessage {
			continue
		}
		var msg protocol.ChatMessage
		if err := env.Decode(&msg); err != nil {
			continue
		}
		c.emit(Event{Type: EventMessage, Message: &msg})
	}
}

// dispatchLoop serializes handler invocation: each event is dispatched to
// completion before the next one starts.
func (c *Conn) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.mu.Lock()
			hs := append([]EventHandler(nil), c.handlers[ev.Type]...)
			c.mu.Unlock()
			for _, h := range hs {
				h(ev)
			}
		}
	}
}

func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if !c.closed {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
