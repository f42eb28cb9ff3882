package chatclient

import (
	"context"
	"net/url"
)

// ListPeers fetches the ordered list of users available for conversation,
// excluding currentUser. One-shot: the directory refreshes only when the
// chat view is reinitialized, and a failure here never blocks connection
// establishment.
func (a *API) ListPeers(ctx context.Context, currentUser string) ([]string, error) {
	var peers []string
	path := "/api/users?current_user=" + url.QueryEscape(currentUser)
	if err := a.get(ctx, path, &peers, ErrDirectoryLoad); err != nil {
		return nil, err
	}
	return peers, nil
}
