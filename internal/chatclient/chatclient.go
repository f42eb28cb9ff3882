// Package chatclient implements the client side of the community chat: one
// persistent connection to the message server, the peer directory, the
// per-conversation message log and the session state machine that ties them
// together. All connection and selection state lives in explicit objects
// constructed at login and torn down when the chat view closes.
package chatclient

// Account identifies the authenticated local user for the lifetime of a
// client session. Immutable once obtained from login.
type Account struct {
	Username string
	Token    string
}
