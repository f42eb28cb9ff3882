package user

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// SessionCookie is the cookie carrying the access token. The web frontend
// sends credentialed requests, so the token rides on a cookie as well as in
// the login response body.
const SessionCookie = "session"

type Handler struct {
	Service *Service
	log     zerolog.Logger
}

func NewHandler(s *Service, log zerolog.Logger) *Handler {
	return &Handler{Service: s, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		h.log.Error().Err(err).Str("username", req.Username).Msg("register failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		h.log.Warn().Str("username", req.Username).Msg("login rejected")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    res.AccessToken,
		Path:     "/",
		Expires:  time.Now().Add(24 * time.Hour),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	json.NewEncoder(w).Encode(res)
}

// ListPeers serves GET /api/users?current_user={u}: the ordered peer
// directory for the chat view. The response is a bare JSON array of
// usernames.
func (h *Handler) ListPeers(w http.ResponseWriter, r *http.Request) {
	current := r.URL.Query().Get("current_user")
	if current == "" {
		http.Error(w, "current_user is required", http.StatusBadRequest)
		return
	}

	peers, err := h.Service.ListPeers(r.Context(), current)
	if err != nil {
		h.log.Error().Err(err).Msg("listing peers failed")
		http.Error(w, "could not load users", http.StatusInternalServerError)
		return
	}
	if peers == nil {
		peers = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(peers)
}
