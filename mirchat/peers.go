package mirchat

import (
	"context"
	"time"
)

// watchCredentials waits for the first credential with a bounded number of
// fixed-delay attempts, then refreshes the peer directory on a fixed
// interval. A token change seen during a refresh is forwarded to the loop.
func (s *Session) watchCredentials(ctx context.Context) {
	cred, ok := s.awaitCredential(ctx)
	if !ok {
		return
	}
	s.post(credentialReady{cred: cred})
	s.refreshPeers(ctx, cred)

	ticker := time.NewTicker(s.cfg.Directory.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			latest, err := s.creds.Credential(ctx)
			if err != nil || latest.Token == "" {
				s.logger.Warn("credential unavailable, skipping directory refresh", "error", errString(err))
				continue
			}
			if latest.Token != cred.Token {
				s.logger.Info("credential changed")
				s.post(credentialReady{cred: latest})
			}
			cred = latest
			s.refreshPeers(ctx, cred)
		}
	}
}

func (s *Session) awaitCredential(ctx context.Context) (Credential, bool) {
	for attempt := 1; ; attempt++ {
		cred, err := s.creds.Credential(ctx)
		if err == nil && cred.Token != "" {
			return cred, true
		}
		if attempt > s.cfg.Directory.MaxRetries {
			s.logger.Warn("credential unavailable, giving up", "attempts", attempt, "error", errString(err))
			return Credential{}, false
		}
		s.logger.Debug("credential not ready", "attempt", attempt, "error", errString(err))

		timer := time.NewTimer(s.cfg.Directory.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Credential{}, false
		case <-timer.C:
		}
	}
}

// refreshPeers fetches the directory once. Failures keep the current peer set.
func (s *Session) refreshPeers(ctx context.Context, cred Credential) {
	if s.peers == nil {
		return
	}
	if s.cfg.Directory.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Directory.RequestTimeout)
		defer cancel()
	}
	peers, err := s.peers.ListPeers(ctx, cred.Token, cred.Subject)
	if err != nil {
		s.logger.Warn("directory refresh failed, no update this cycle", "error", err)
		return
	}
	s.logger.Debug("directory refreshed", "peers", len(peers))
	s.post(peersFetched{peers: peers})
}
