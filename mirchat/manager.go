package mirchat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// handle is one channel instance. It is replaced, never reused, across
// reconnects.
type handle struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	conn    Conn
	writeCh chan []byte
}

// Manager owns the lifecycle of the single real-time channel of a session.
//
// All methods except State must be called from the session loop. Goroutines
// started by the manager (dial, read, write) report back through post and
// never mutate the manager directly.
type Manager struct {
	cfg       ChannelConfig
	reconnect ReconnectConfig
	dial      DialFunc
	post      func(event)
	logger    *slog.Logger

	onState func(StateEvent)
	onFrame func([]byte)

	state      atomic.Int32
	current    *handle
	token      string
	foreground bool

	failures   int
	retrySeq   uint64
	retryTimer *time.Timer
}

func newManager(cfg Config, dial DialFunc, post func(event), logger *slog.Logger) *Manager {
	return &Manager{
		cfg:        cfg.Channel,
		reconnect:  cfg.Reconnect,
		dial:       dial,
		post:       post,
		logger:     logger,
		foreground: true,
	}
}

// State returns the current connection state. Safe for concurrent use.
func (m *Manager) State() ConnectionState {
	return ConnectionState(m.state.Load())
}

// Establish terminates any existing handle and starts a new one with token
// attached. Completion is observed through state transitions.
func (m *Manager) Establish(token string) {
	if token == "" {
		m.logger.Warn("establish skipped: missing token")
		return
	}
	m.cancelRetry()
	if h := m.current; h != nil {
		m.release(h, ReasonReplaced)
		m.transition(StateClosed, h.id, ReasonReplaced, nil)
	}

	target, err := channelURL(m.cfg.URL, token)
	if err != nil {
		m.transition(StateClosed, "", ReasonInvalidTarget, WrapError(ErrorTransport, ReasonInvalidTarget, err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		id:      uuid.NewString(),
		ctx:     ctx,
		cancel:  cancel,
		writeCh: make(chan []byte, m.cfg.WriteQueue),
	}
	m.current = h
	m.transition(StateConnecting, h.id, "", nil)
	go m.dialHandle(h, target)
}

// Send transmits payload once over the open handle. Nothing is queued when
// the channel is not open.
func (m *Manager) Send(payload any) error {
	h := m.current
	if m.State() != StateOpen || h == nil || h.conn == nil {
		return ErrChannelUnavailable
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return WrapError(ErrorSerialization, "encode frame", err)
	}
	select {
	case h.writeCh <- data:
		return nil
	default:
		return WrapError(ErrorChannelUnavailable, "write queue full", nil)
	}
}

// Teardown terminates any live handle and returns to Idle. Idempotent.
func (m *Manager) Teardown() {
	m.cancelRetry()
	id := ""
	if h := m.current; h != nil {
		id = h.id
		m.release(h, ReasonTeardown)
	}
	m.token = ""
	if m.State() != StateIdle {
		m.transition(StateIdle, id, ReasonTeardown, nil)
	}
}

// TokenAvailable is the first reconnect trigger: a fresh token always
// re-establishes, an unchanged one only when the channel is not live.
func (m *Manager) TokenAvailable(token string) {
	if token == "" {
		m.logger.Warn("token update ignored: empty token")
		return
	}
	fresh := token != m.token
	m.token = token
	if fresh {
		m.failures = 0
	} else if m.State().Live() {
		return
	}
	m.Establish(token)
}

// SetForeground is the second reconnect trigger: a background to foreground
// transition re-establishes once when the channel is not open.
func (m *Manager) SetForeground(visible bool) {
	was := m.foreground
	m.foreground = visible
	if !visible || was {
		return
	}
	if m.State() == StateOpen {
		return
	}
	if m.token == "" {
		m.logger.Debug("foreground without token, not connecting")
		return
	}
	m.logger.Info("foreground regained, reconnecting", "state", m.State().String())
	m.Establish(m.token)
}

// dispatch applies a transport event. Events from a handle other than the
// current one are ignored.
func (m *Manager) dispatch(ev event) {
	switch ev := ev.(type) {
	case handleOpened:
		m.opened(ev.h, ev.conn)
	case handleFailed:
		if m.stale(ev.h, "dial result") {
			return
		}
		m.fail(ev.h, ReasonDialFailed, ev.err)
	case frameReceived:
		if m.stale(ev.h, "frame") {
			return
		}
		if m.onFrame != nil {
			m.onFrame(ev.data)
		}
	case handleClosed:
		if m.stale(ev.h, "close") {
			return
		}
		reason := ReasonTransport
		if isExpectedDisconnect(ev.err) {
			reason = ReasonRemoteClose
		}
		m.fail(ev.h, reason, ev.err)
	case reconnectDue:
		m.retryDue(ev.seq)
	}
}

func (m *Manager) stale(h *handle, what string) bool {
	if h == m.current {
		return false
	}
	m.logger.Debug("ignoring event from stale handle", "event", what, "handle", h.id)
	return true
}

func (m *Manager) opened(h *handle, conn Conn) {
	if m.stale(h, "open") {
		go closeConn(conn, ReasonReplaced)
		return
	}
	h.conn = conn
	m.failures = 0
	m.transition(StateOpen, h.id, "", nil)
	go m.readLoop(h)
	go m.writeLoop(h)
}

func (m *Manager) fail(h *handle, reason string, err error) {
	m.release(h, reason)
	m.logger.Warn("channel closed", "handle", h.id, "reason", reason, "error", errString(err))
	m.transition(StateClosed, h.id, reason, WrapError(ErrorTransport, reason, err))
	m.scheduleRetry()
}

// release cancels the handle's goroutines and closes its connection.
func (m *Manager) release(h *handle, reason string) {
	if m.current == h {
		m.current = nil
	}
	h.cancel()
	if h.conn != nil {
		go closeConn(h.conn, reason)
	}
}

func (m *Manager) transition(next ConnectionState, handleID, reason string, err error) {
	old := ConnectionState(m.state.Swap(int32(next)))
	m.logger.Info("channel state changed",
		"from", old.String(),
		"to", next.String(),
		"handle", handleID,
		"reason", reason,
	)
	if m.onState != nil {
		m.onState(StateEvent{
			OldState: old,
			NewState: next,
			HandleID: handleID,
			Reason:   reason,
			Error:    err,
		})
	}
}

// scheduleRetry arms a single delayed establish after a failure while the
// session is in the foreground and holds a token.
func (m *Manager) scheduleRetry() {
	if !m.reconnect.OnFailure || !m.foreground || m.token == "" {
		return
	}
	if m.reconnect.MaxAttempts > 0 && m.failures >= m.reconnect.MaxAttempts {
		m.logger.Warn("reconnect attempts exhausted", "attempts", m.failures)
		return
	}
	m.failures++
	m.retrySeq++
	seq := m.retrySeq
	m.retryTimer = time.AfterFunc(m.reconnect.Delay, func() {
		m.post(reconnectDue{seq: seq})
	})
}

func (m *Manager) retryDue(seq uint64) {
	if seq != m.retrySeq {
		return
	}
	m.retryTimer = nil
	// Level-triggered: act only if the channel is still unhealthy.
	if m.State().Live() || !m.foreground || m.token == "" {
		return
	}
	m.logger.Info("reconnecting after failure", "attempt", m.failures)
	m.Establish(m.token)
}

func (m *Manager) cancelRetry() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.retrySeq++
}

func (m *Manager) dialHandle(h *handle, target string) {
	ctx := h.ctx
	if m.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
		defer cancel()
	}
	conn, err := m.dial(ctx, target)
	if err != nil {
		m.post(handleFailed{h: h, err: err})
		return
	}
	m.post(handleOpened{h: h, conn: conn})
}

func (m *Manager) readLoop(h *handle) {
	for {
		data, err := h.conn.Read(h.ctx)
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}
			m.post(handleClosed{h: h, err: err})
			return
		}
		m.post(frameReceived{h: h, data: data})
	}
}

func (m *Manager) writeLoop(h *handle) {
	for {
		select {
		case data := <-h.writeCh:
			if err := m.write(h, data); err != nil {
				if h.ctx.Err() != nil {
					return
				}
				m.post(handleClosed{h: h, err: err})
				return
			}
		case <-h.ctx.Done():
			return
		}
	}
}

func (m *Manager) write(h *handle, data []byte) error {
	ctx := h.ctx
	if m.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.WriteTimeout)
		defer cancel()
	}
	return h.conn.Write(ctx, data)
}

func closeConn(c Conn, reason string) {
	_ = c.Close(reason)
}

func isExpectedDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
