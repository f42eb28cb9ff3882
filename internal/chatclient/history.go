package chatclient

import (
	"context"
	"net/url"

	"communitychat/internal/protocol"
)

// History fetches the stored conversation between currentUser and peer, in
// ascending timestamp order as delivered by the server.
func (a *API) History(ctx context.Context, currentUser, peer string) ([]protocol.ChatMessage, error) {
	var msgs []protocol.ChatMessage
	path := "/api/messages/" + url.PathEscape(peer) +
		"?current_user=" + url.QueryEscape(currentUser)
	if err := a.get(ctx, path, &msgs, ErrHistoryLoad); err != nil {
		return nil, err
	}
	return msgs, nil
}
