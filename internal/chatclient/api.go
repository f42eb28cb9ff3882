package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// API wraps the HTTP collaborators of the chat: the peer directory and the
// message history endpoints. Failures are surfaced to the caller and never
// retried automatically.
type API struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewAPI(baseURL string, acct Account) *API {
	return &API{
		baseURL: baseURL,
		token:   acct.Token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *API) get(ctx context.Context, path string, out any, loadErr error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", loadErr, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", loadErr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", loadErr, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", loadErr, err)
	}
	return nil
}
