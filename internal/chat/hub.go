package chat

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"communitychat/internal/protocol"
)

// redisPrefix namespaces the per-conversation pub/sub channels.
const redisPrefix = "chat:"

// MessageStore is what the hub needs from persistence.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *protocol.ChatMessage) error
}

type membership struct {
	client *Client
	key    string
}

type outbound struct {
	key     string
	payload []byte
}

// Hub routes events between connected clients. Room membership is keyed by
// the conversation pair and lasts only as long as the connection, which is
// why clients re-join after a reconnect.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	join       chan membership
	leave      chan membership
	publish    chan *protocol.ChatMessage

	// broadcast receives fan-out frames, either from Redis or, with no
	// Redis configured, directly from the publish path.
	broadcast chan outbound

	redis *redis.Client
	store MessageStore
	log   zerolog.Logger
}

// NewHub builds a hub. redisClient may be nil, in which case fan-out stays
// within this instance.
func NewHub(redisClient *redis.Client, store MessageStore, log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		join:       make(chan membership),
		leave:      make(chan membership),
		publish:    make(chan *protocol.ChatMessage),
		broadcast:  make(chan outbound),
		redis:      redisClient,
		store:      store,
		log:        log,
	}
}

// Run is the hub's single event loop. It is the only goroutine that touches
// clients and rooms.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for key := range client.rooms {
					h.removeFromRoom(client, key)
				}
				close(client.Send)
			}

		case m := <-h.join:
			if !h.clients[m.client] {
				continue
			}
			room := h.rooms[m.key]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[m.key] = room
			}
			room[m.client] = true
			m.client.rooms[m.key] = true

		case m := <-h.leave:
			// Leaving a room you never joined is a no-op.
			h.removeFromRoom(m.client, m.key)

		case msg := <-h.publish:
			h.handlePublish(msg)

		case out := <-h.broadcast:
			h.deliver(out.key, out.payload)
		}
	}
}

func (h *Hub) handlePublish(msg *protocol.ChatMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		h.log.Error().Err(err).Str("from", msg.From).Str("to", msg.To).Msg("persisting message failed")
	}
	cancel()

	payload, err := protocol.Encode(protocol.EventMessage, msg)
	if err != nil {
		h.log.Error().Err(err).Msg("encoding message failed")
		return
	}

	key := protocol.PairKey(msg.From, msg.To)
	if h.redis != nil {
		// The frame comes back through SubscribeToRedis, so every
		// instance (this one included) delivers it exactly once.
		if err := h.redis.Publish(context.Background(), redisPrefix+key, payload).Err(); err != nil {
			h.log.Error().Err(err).Msg("redis publish failed")
		}
		return
	}
	h.deliver(key, payload)
}

func (h *Hub) deliver(key string, payload []byte) {
	for client := range h.rooms[key] {
		select {
		case client.Send <- payload:
		default:
			delete(h.clients, client)
			for k := range client.rooms {
				h.removeFromRoom(client, k)
			}
			close(client.Send)
		}
	}
}

func (h *Hub) removeFromRoom(client *Client, key string) {
	if room, ok := h.rooms[key]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, key)
		}
	}
	delete(client.rooms, key)
}

// SubscribeToRedis bridges conversation frames published by other instances
// into this hub's broadcast path. No-op without a Redis client.
func (h *Hub) SubscribeToRedis() {
	if h.redis == nil {
		return
	}
	pubsub := h.redis.PSubscribe(context.Background(), redisPrefix+"*")
	ch := pubsub.Channel()

	for msg := range ch {
		key := strings.TrimPrefix(msg.Channel, redisPrefix)
		h.broadcast <- outbound{key: key, payload: []byte(msg.Payload)}
	}
}
