package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"communitychat/internal/protocol"
)

// SessionState is the conversation lifecycle.
type SessionState int

const (
	// SessionIdle: no conversation active.
	SessionIdle SessionState = iota
	// SessionLoading: a peer is selected and its history fetch is in
	// flight.
	SessionLoading
	// SessionActive: joined and live-subscribed.
	SessionActive
)

func (s SessionState) String() string {
	switch s {
	case SessionLoading:
		return "loading"
	case SessionActive:
		return "active"
	default:
		return "idle"
	}
}

// Transport is what the session needs from the connection manager.
type Transport interface {
	Send(event string, payload any) error
	OnEvent(t EventType, h EventHandler)
	SetRejoin(f func() *protocol.Room)
}

// HistoryFetcher loads the stored conversation with a peer.
type HistoryFetcher interface {
	History(ctx context.Context, currentUser, peer string) ([]protocol.ChatMessage, error)
}

// Session governs which conversation is active: join/leave against the
// transport, history loading, and the switch-over between peers. It owns
// the Store exclusively and is safe for concurrent use.
type Session struct {
	acct    Account
	conn    Transport
	history HistoryFetcher
	store   *Store
	log     zerolog.Logger

	mu    sync.Mutex
	state SessionState
	peer  string

	// gen is the selection generation. A history response is applied
	// only if the generation it was issued under is still current; this
	// is the stale-response guard for rapid peer switches.
	gen uint64

	onChange func()
	onError  func(error)
}

// NewSession wires the controller to the transport. Inbound message events
// are filtered here: the transport is not scoped to one conversation, so
// isolation across conversations is the client's responsibility.
func NewSession(acct Account, conn Transport, history HistoryFetcher, log zerolog.Logger) *Session {
	s := &Session{
		acct:    acct,
		conn:    conn,
		history: history,
		store:   NewStore(),
		log:     log,
	}
	conn.OnEvent(EventMessage, s.handleMessage)
	conn.SetRejoin(s.activeRoom)
	return s
}

// OnChange registers a callback fired whenever the store or session state
// changes. Used by the presentation layer to redraw.
func (s *Session) OnChange(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = f
}

// OnError registers a callback for user-visible failures (dropped sends).
func (s *Session) OnError(f func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = f
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Peer returns the selected peer, or "" when idle.
func (s *Session) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Messages returns the active conversation's ordered messages.
func (s *Session) Messages() []protocol.ChatMessage {
	return s.store.All()
}

// SelectPeer switches the active conversation to peer: leave the old room,
// clear the store, fetch history, load it, join the new room. Selecting the
// already-active peer is a no-op. If the user selects someone else while
// this fetch is in flight, the stale result is discarded on arrival.
func (s *Session) SelectPeer(ctx context.Context, peer string) error {
	s.mu.Lock()
	if peer == "" || (peer == s.peer && s.state != SessionIdle) {
		s.mu.Unlock()
		return nil
	}
	if s.state == SessionActive {
		s.sendLeaveLocked()
	}
	s.gen++
	gen := s.gen
	s.peer = peer
	s.state = SessionLoading
	s.store.Clear()
	s.notifyLocked()
	s.mu.Unlock()

	msgs, err := s.history.History(ctx, s.acct.Username, peer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// A newer selection superseded this fetch.
		s.log.Debug().Str("peer", peer).Msg("stale history response discarded")
		return nil
	}
	if err != nil {
		s.state = SessionIdle
		s.peer = ""
		s.notifyLocked()
		return err
	}

	s.store.Load(msgs)
	if err := s.conn.Send(protocol.EventJoin, &protocol.Room{
		Username:  s.acct.Username,
		OtherUser: peer,
	}); err != nil {
		s.log.Warn().Err(err).Str("peer", peer).Msg("join not delivered")
	}
	s.state = SessionActive
	s.notifyLocked()
	return nil
}

// Leave unjoins the active conversation and returns to idle. No-op when
// nothing is active.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionIdle {
		return
	}
	if s.state == SessionActive {
		s.sendLeaveLocked()
	}
	s.gen++ // invalidates any in-flight history fetch
	s.state = SessionIdle
	s.peer = ""
	s.store.Clear()
	s.notifyLocked()
}

// SendMessage validates, optimistically appends, and emits text to the
// active peer. The local echo stays in the store even when delivery fails;
// the failure is reported through OnError but never retried.
func (s *Session) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if s.state != SessionActive {
		s.mu.Unlock()
		return ErrNotConnected
	}
	msg := protocol.ChatMessage{
		From:      s.acct.Username,
		To:        s.peer,
		Body:      text,
		Timestamp: time.Now().UTC(),
	}
	s.store.Append(msg)
	s.notifyLocked()
	s.mu.Unlock()

	if err := s.conn.Send(protocol.EventMessage, &msg); err != nil {
		s.log.Warn().Err(err).Str("to", msg.To).Msg("message not delivered")
		s.reportError(err)
		return err
	}
	return nil
}

// handleMessage accepts an inbound message into the store only if it
// belongs to the active conversation and was not sent by the local user.
// Local sends are appended at send time, so dropping the server's echo
// keeps each message displayed exactly once.
func (s *Session) handleMessage(ev Event) {
	if ev.Message == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionActive {
		return
	}
	if !ev.Message.Matches(s.acct.Username, s.peer) {
		return
	}
	if ev.Message.From == s.acct.Username {
		return
	}
	s.store.Append(*ev.Message)
	s.notifyLocked()
}

// activeRoom reports the room to rejoin after a reconnect, nil when no
// conversation is active.
func (s *Session) activeRoom() *protocol.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionActive {
		return nil
	}
	return &protocol.Room{Username: s.acct.Username, OtherUser: s.peer}
}

func (s *Session) sendLeaveLocked() {
	if err := s.conn.Send(protocol.EventLeave, &protocol.Room{
		Username:  s.acct.Username,
		OtherUser: s.peer,
	}); err != nil && !errors.Is(err, ErrSendDropped) {
		s.log.Warn().Err(err).Str("peer", s.peer).Msg("leave not delivered")
	}
}

func (s *Session) notifyLocked() {
	if s.onChange != nil {
		go s.onChange()
	}
}

func (s *Session) reportError(err error) {
	s.mu.Lock()
	f := s.onError
	s.mu.Unlock()
	if f != nil {
		f(fmt.Errorf("message not delivered: %w", err))
	}
}
