// Package directory is the REST client for the peer directory.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vovakirdan/mirchat-sdk-go/mirchat"
)

const usersPath = "/v1/users"

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// Client provides access to the peer directory.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new directory client.
// baseURL should be the API root, e.g. "https://api.example.com".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// ListUsers returns every user known to the directory.
func (c *Client) ListUsers(ctx context.Context, token string) ([]User, error) {
	if token == "" {
		return nil, mirchat.ErrCredentialUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+usersPath, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	var env Envelope
	if err := c.do(req, &env); err != nil {
		return nil, err
	}
	if env.StatusCode != http.StatusOK {
		return nil, mirchat.NewError(mirchat.ErrorDirectory, fmt.Sprintf("unexpected statusCode %d", env.StatusCode))
	}
	users, err := env.Users()
	if err != nil {
		return nil, mirchat.WrapError(mirchat.ErrorDirectory, "decode users", err)
	}
	return users, nil
}

// ListPeers returns the addressable peers, excluding self. Entries without
// an id are skipped; a missing name falls back to the id.
func (c *Client) ListPeers(ctx context.Context, token, self string) ([]mirchat.Peer, error) {
	users, err := c.ListUsers(ctx, token)
	if err != nil {
		return nil, err
	}
	peers := make([]mirchat.Peer, 0, len(users))
	for _, u := range users {
		if u.UserID == "" || u.UserID == self {
			continue
		}
		name := u.UserName
		if name == "" {
			name = u.UserID
		}
		peers = append(peers, mirchat.Peer{ID: u.UserID, DisplayName: name})
	}
	return peers, nil
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mirchat.WrapError(mirchat.ErrorDirectory, "http request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return mirchat.WrapError(mirchat.ErrorDirectory, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && (errResp.Error != "" || errResp.Message != "") {
			msg := errResp.Error
			if msg == "" {
				msg = errResp.Message
			}
			return mirchat.NewError(mirchat.ErrorDirectory, fmt.Sprintf("api error (status %d): %s", resp.StatusCode, msg))
		}
		return mirchat.NewError(mirchat.ErrorDirectory, fmt.Sprintf("http error (status %d)", resp.StatusCode))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return mirchat.WrapError(mirchat.ErrorDirectory, "unmarshal response", err)
	}
	return nil
}
