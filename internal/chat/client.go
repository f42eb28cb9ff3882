package chat

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"communitychat/internal/protocol"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	Username string

	// rooms holds this connection's memberships. Only the hub loop
	// touches it.
	rooms map[string]bool
}

func NewClient(hub *Hub, conn *websocket.Conn, username string) *Client {
	return &Client{
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Username: username,
		rooms:    make(map[string]bool),
	}
}

// ReadPump pumps frames from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Debug().Err(err).Str("user", c.Username).Msg("read error")
			}
			break
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.Hub.log.Warn().Str("user", c.Username).Msg("malformed frame dropped")
			continue
		}
		c.handleEvent(&env)
	}
}

func (c *Client) handleEvent(env *protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoin, protocol.EventLeave:
		var room protocol.Room
		if err := env.Decode(&room); err != nil || room.Username != c.Username {
			return
		}
		m := membership{client: c, key: protocol.PairKey(room.Username, room.OtherUser)}
		if env.Event == protocol.EventJoin {
			c.Hub.join <- m
		} else {
			c.Hub.leave <- m
		}

	case protocol.EventMessage:
		var msg protocol.ChatMessage
		if err := env.Decode(&msg); err != nil {
			return
		}
		// Clients may only send as themselves.
		if msg.From != c.Username || msg.Body == "" {
			return
		}
		msg.ID = "" // server-assigned
		c.Hub.publish <- &msg
	}
}

// WritePump pumps frames from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
