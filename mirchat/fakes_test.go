package mirchat

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

// fakeConn is an in-memory Conn. Frames pushed to in are read by the
// manager; written frames are recorded and mirrored on writes.
type fakeConn struct {
	in      chan []byte
	readErr chan error
	writes  chan []byte
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 16),
		readErr: make(chan error, 1),
		writes:  make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case err := <-c.readErr:
		return nil, err
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	c.written = append(c.written, data)
	c.mu.Unlock()
	c.writes <- data
	return nil
}

func (c *fakeConn) Close(string) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) writtenFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// fakeDialer hands out a fresh fakeConn per dial unless a failure is queued.
type fakeDialer struct {
	mu       sync.Mutex
	urls     []string
	conns    []*fakeConn
	failures []error
}

func (d *fakeDialer) dial(_ context.Context, u string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, u)
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return nil, err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) failNext(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, err)
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 {
		i = len(d.conns) + i
	}
	return d.conns[i]
}

func (d *fakeDialer) tokenOf(i int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, err := url.Parse(d.urls[i])
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}

// fakeChannel stands in for the manager in router tests.
type fakeChannel struct {
	state ConnectionState
	err   error
	sent  []any
}

func (c *fakeChannel) State() ConnectionState { return c.state }

func (c *fakeChannel) Send(payload any) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, payload)
	return nil
}

// stubCredentials returns queued results, then repeats the last one.
type stubCredentials struct {
	mu      sync.Mutex
	cred    Credential
	err     error
	calls   int
	forgets int
}

func (s *stubCredentials) Credential(context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return Credential{}, s.err
	}
	return s.cred, nil
}

func (s *stubCredentials) Forget() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgets++
	return nil
}

func (s *stubCredentials) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubPeers struct {
	mu    sync.Mutex
	peers []Peer
	err   error
	self  []string
}

func (s *stubPeers) ListPeers(_ context.Context, token, self string) ([]Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = append(s.self, self)
	if s.err != nil {
		return nil, s.err
	}
	return append([]Peer(nil), s.peers...), nil
}

// recorder collects session callbacks, which run on the loop goroutine.
type recorder struct {
	mu      sync.Mutex
	states  []StateEvent
	notices []Notice
	updates int
}

func (r *recorder) attach(s *Session) {
	s.OnStateChanged(func(ev StateEvent) {
		r.mu.Lock()
		r.states = append(r.states, ev)
		r.mu.Unlock()
	})
	s.OnNotice(func(n Notice) {
		r.mu.Lock()
		r.notices = append(r.notices, n)
		r.mu.Unlock()
	})
	s.OnUpdate(func() {
		r.mu.Lock()
		r.updates++
		r.mu.Unlock()
	})
}

func (r *recorder) noticeCodes() []ErrorCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]ErrorCode, 0, len(r.notices))
	for _, n := range r.notices {
		codes = append(codes, n.Code)
	}
	return codes
}

func (r *recorder) lastState() (StateEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return StateEvent{}, false
	}
	return r.states[len(r.states)-1], true
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Channel.URL = "ws://chat.test/ws"
	cfg.Directory.BaseURL = "http://chat.test"
	cfg.Reconnect.OnFailure = false
	return cfg
}

func waitFor(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

var errDialRefused = errors.New("connection refused")
