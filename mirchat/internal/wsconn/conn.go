// Package wsconn adapts a websocket to the byte-frame channel used by the
// session.
package wsconn

import (
	"context"

	"github.com/coder/websocket"
)

// readLimit caps a single inbound frame.
const readLimit = 64 << 10

// Conn wraps websocket.Conn. Deadlines are carried by the contexts passed to
// Read and Write.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens a websocket to url. The handshake is bounded by ctx.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(readLimit)
	return NewConn(ws), nil
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Read returns the payload of the next data frame, text or binary.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	return data, err
}

// Write sends data as a single text frame.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Close performs a normal closure handshake.
func (c *Conn) Close(reason string) error {
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}
