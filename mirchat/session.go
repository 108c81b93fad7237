package mirchat

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// CredentialSource supplies the bearer token and subject of the session.
// It returns ErrCredentialUnavailable while no token can be obtained.
type CredentialSource interface {
	Credential(ctx context.Context) (Credential, error)
}

// Forgetter is implemented by credential sources holding local artifacts
// that must be cleared on sign-out.
type Forgetter interface {
	Forget() error
}

// PeerSource lists addressable peers, excluding the subject self.
type PeerSource interface {
	ListPeers(ctx context.Context, token, self string) ([]Peer, error)
}

// Session is one authenticated chat session: a single channel, the
// conversation store and the router between them.
//
// All state is owned by the loop started with Run. Exported methods are safe
// for concurrent use; they post work into the loop.
type Session struct {
	cfg    Config
	logger *slog.Logger
	creds  CredentialSource
	peers  PeerSource

	store  *Store
	mgr    *Manager
	router *Router

	events    chan event
	done      chan struct{}
	started   atomic.Bool
	connected atomic.Bool

	onState  func(StateEvent)
	onNotice func(Notice)
	onUpdate func()

	// loop-owned
	cred    Credential
	stopped bool
}

// NewSession constructs a session with provided config.
// Use DefaultConfig() as a starting point and modify as needed.
func NewSession(cfg Config) *Session {
	s := &Session{
		cfg:    cfg,
		logger: discardLogger(),
		store:  NewStore(),
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
	s.store.SetUnknownLabel(cfg.Messages.UnknownLabel)
	s.mgr = newManager(cfg, WebSocketDialer(), s.post, s.logger)
	s.mgr.onState = s.handleState
	s.mgr.onFrame = s.handleFrame
	s.router = newRouter(cfg.Messages, s.store, s.mgr, s.logger)
	return s
}

// SetLogger overrides logger (optional). Call before Run.
func (s *Session) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	s.logger = l
	s.mgr.logger = l.With("component", "channel")
	s.router.logger = l.With("component", "router")
}

// SetDialer overrides how channels are opened. Call before Run.
func (s *Session) SetDialer(dial DialFunc) {
	if dial != nil {
		s.mgr.dial = dial
	}
}

// SetCredentials sets the credential source polled by Run.
func (s *Session) SetCredentials(src CredentialSource) { s.creds = src }

// SetPeerSource sets the directory refreshed by Run.
func (s *Session) SetPeerSource(src PeerSource) { s.peers = src }

// OnStateChanged registers callback for channel state transitions.
func (s *Session) OnStateChanged(fn func(StateEvent)) { s.onState = fn }

// OnNotice registers callback for transient advisories.
func (s *Session) OnNotice(fn func(Notice)) { s.onNotice = fn }

// OnUpdate registers callback invoked whenever the store changed.
func (s *Session) OnUpdate(fn func()) { s.onUpdate = fn }

// Run processes events until ctx is done or the session signs out. The
// channel is torn down before Run returns.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	defer close(s.done)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.creds != nil {
		go s.watchCredentials(runCtx)
	}

	for {
		select {
		case <-runCtx.Done():
			s.mgr.Teardown()
			return nil
		case ev := <-s.events:
			s.apply(ev)
			if s.stopped {
				return nil
			}
		}
	}
}

// SetCredential hands a credential to the session, e.g. after a login
// completed. A fresh token re-establishes the channel.
func (s *Session) SetCredential(cred Credential) {
	s.post(credentialReady{cred: cred})
}

// SetForeground reports visibility changes. Regaining the foreground while
// the channel is not open reconnects.
func (s *Session) SetForeground(foreground bool) {
	s.post(visibilityChanged{foreground: foreground})
}

// SelectPeer selects a peer and clears its unread flag. Empty clears the
// selection.
func (s *Session) SelectPeer(ctx context.Context, peerID string) error {
	return s.do(ctx, func() {
		s.store.SelectPeer(peerID)
		s.notifyUpdate()
	})
}

// Send routes body to the selected peer. Validation and channel failures are
// returned and also raised as a notice.
func (s *Session) Send(ctx context.Context, body string) error {
	var err error
	if doErr := s.do(ctx, func() {
		err = s.router.RouteOutbound(s.store.Selected(), body)
		if err != nil {
			s.notify(noticeFor(err))
			return
		}
		s.notifyUpdate()
	}); doErr != nil {
		return doErr
	}
	return err
}

// SignOut terminates the channel, clears local session state and credential
// artifacts, and stops Run. It returns the identity provider's logout URL.
func (s *Session) SignOut(ctx context.Context) (string, error) {
	err := s.do(ctx, func() {
		s.mgr.Teardown()
		s.store.Reset()
		s.cred = Credential{}
		s.router.SetSelf("")
		if f, ok := s.creds.(Forgetter); ok {
			if err := f.Forget(); err != nil {
				s.logger.Warn("forgetting credentials failed", "error", err)
			}
		}
		s.stopped = true
		s.notifyUpdate()
	})
	if err != nil {
		return "", err
	}
	return s.cfg.Auth.SignOutURL(), nil
}

// View returns a snapshot of peers, selection and the selected thread.
func (s *Session) View() View { return s.store.View() }

// Store exposes the conversation store for read access.
func (s *Session) Store() *Store { return s.store }

// State returns the channel state.
func (s *Session) State() ConnectionState { return s.mgr.State() }

// Connected is the connectivity indicator.
func (s *Session) Connected() bool { return s.connected.Load() }

func (s *Session) apply(ev event) {
	switch ev := ev.(type) {
	case intent:
		ev.fn()
		close(ev.done)
	case credentialReady:
		s.applyCredential(ev.cred)
	case peersFetched:
		s.store.ReplacePeers(ev.peers)
		s.notifyUpdate()
	case visibilityChanged:
		s.mgr.SetForeground(ev.foreground)
	default:
		s.mgr.dispatch(ev)
	}
}

func (s *Session) applyCredential(cred Credential) {
	if cred.Token == "" {
		s.logger.Warn("credential ignored: empty token")
		return
	}
	s.cred = cred
	s.router.SetSelf(cred.Subject)
	s.mgr.TokenAvailable(cred.Token)
}

func (s *Session) handleState(ev StateEvent) {
	s.connected.Store(ev.NewState == StateOpen)
	if s.onState != nil {
		s.onState(ev)
	}
	if ev.NewState == StateClosed && ev.Error != nil {
		s.notify(Notice{
			Level: NoticeWarning,
			Code:  ErrorTransport,
			Text:  "connection lost (" + ev.Reason + ")",
		})
	}
}

func (s *Session) handleFrame(data []byte) {
	if s.router.RouteInbound(data) {
		s.notifyUpdate()
	}
}

func (s *Session) notify(n Notice) {
	if s.onNotice != nil {
		s.onNotice(n)
	}
}

func (s *Session) notifyUpdate() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// post delivers ev to the loop. It gives up once the loop has exited.
func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// do runs fn on the loop and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	in := intent{fn: fn, done: make(chan struct{})}
	select {
	case s.events <- in:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-in.done:
		return nil
	case <-s.done:
		select {
		case <-in.done:
			return nil
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
