package chat

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	myMiddleware "communitychat/internal/middleware"
	"communitychat/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	hub  *Hub
	repo *Repository
	log  zerolog.Logger
}

func NewHandler(hub *Hub, repo *Repository, log zerolog.Logger) *Handler {
	return &Handler{hub: hub, repo: repo, log: log}
}

// ServeWs upgrades an authenticated request to the persistent chat
// connection and starts the pumps.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	username, ok := r.Context().Value(myMiddleware.UsernameKey).(string)
	if !ok || username == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, username)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// GetChatHistory serves GET /api/messages/{peer}: the ordered history of the
// conversation between the authenticated user and the peer.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	username, ok := r.Context().Value(myMiddleware.UsernameKey).(string)
	if !ok || username == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	peer := chi.URLParam(r, "peer")
	if peer == "" {
		http.Error(w, "peer is required", http.StatusBadRequest)
		return
	}

	msgs, err := h.repo.GetHistory(r.Context(), username, peer)
	if err != nil {
		h.log.Error().Err(err).Str("user", username).Str("peer", peer).Msg("loading history failed")
		http.Error(w, "could not load messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []protocol.ChatMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}
