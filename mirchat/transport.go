package mirchat

import (
	"context"
	"net/url"

	"github.com/vovakirdan/mirchat-sdk-go/mirchat/internal/wsconn"
)

// Conn is one established full-duplex channel.
type Conn interface {
	// Read blocks until the next frame arrives or ctx is done.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}

// DialFunc opens a channel to the fully qualified url (token included).
type DialFunc func(ctx context.Context, url string) (Conn, error)

// WebSocketDialer returns the default DialFunc backed by a websocket. Read and
// write deadlines come from the caller's context.
func WebSocketDialer() DialFunc {
	return func(ctx context.Context, u string) (Conn, error) {
		c, err := wsconn.Dial(ctx, u)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// channelURL attaches the bearer token as the "token" query parameter.
func channelURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
