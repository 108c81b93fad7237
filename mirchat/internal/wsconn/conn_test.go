package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// echoServer echoes every frame back and records the close status it sees.
func echoServer(t *testing.T, closed chan<- websocket.StatusCode) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		for {
			typ, data, err := ws.Read(r.Context())
			if err != nil {
				closed <- websocket.CloseStatus(err)
				return
			}
			if err := ws.Write(r.Context(), typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnRoundTrip(t *testing.T) {
	closed := make(chan websocket.StatusCode, 1)
	url := echoServer(t, closed)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := c.Write(ctx, []byte(`{"hello":"world"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != `{"hello":"world"}` {
		t.Fatalf("unexpected frame %q", got)
	}

	if err := c.Close("bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case code := <-closed:
		if code != websocket.StatusNormalClosure {
			t.Fatalf("close status = %v, want normal closure", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe close")
	}
}

func TestConnReadHonorsContext(t *testing.T) {
	url := echoServer(t, make(chan websocket.StatusCode, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close("")

	readCtx, readCancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer readCancel()
	start := time.Now()
	if _, err := c.Read(readCtx); err == nil {
		t.Fatal("expected read to fail once the context expires")
	}
	if time.Since(start) > time.Second {
		t.Fatal("read outlived its context")
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")); err == nil {
		t.Fatal("expected dial error")
	}
}
