package chatclient

import "errors"

var (
	// ErrConnectionFailed is reported through the connectionError event
	// once the reconnect budget is exhausted.
	ErrConnectionFailed = errors.New("chatclient: connection failed")

	// ErrSendDropped means an outgoing event was discarded because the
	// connection was down. Sends are at-most-once: the caller may flag
	// the loss but there is no retry or replay.
	ErrSendDropped = errors.New("chatclient: send dropped, not connected")

	// ErrNotConnected is returned for operations that need an active
	// conversation or connection.
	ErrNotConnected = errors.New("chatclient: not connected")

	// ErrDirectoryLoad wraps HTTP failures of the peer directory fetch.
	ErrDirectoryLoad = errors.New("chatclient: could not load user directory")

	// ErrHistoryLoad wraps HTTP failures of the message history fetch.
	ErrHistoryLoad = errors.New("chatclient: could not load message history")
)
