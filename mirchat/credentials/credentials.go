// Package credentials provides credential sources for a session: a static
// token, an environment variable, a token file, and a chain of those.
//
// The subject of a credential is taken from the token's "sub" claim. The
// token is not verified here; the identity provider and the backend do that.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/mirchat-sdk-go/mirchat"
)

// EnvToken is the default environment variable holding the token.
const EnvToken = "MIRCHAT_TOKEN"

// SubjectFromToken extracts the "sub" claim without verifying the signature.
func SubjectFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("read subject: %w", err)
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func fromToken(token, subject string) (mirchat.Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return mirchat.Credential{}, mirchat.ErrCredentialUnavailable
	}
	if subject == "" {
		sub, err := SubjectFromToken(token)
		if err != nil {
			return mirchat.Credential{}, mirchat.WrapError(mirchat.ErrorCredentialUnavailable, "token has no usable subject", err)
		}
		subject = sub
	}
	return mirchat.Credential{Token: token, Subject: subject}, nil
}

// Static is a fixed credential. An empty Subject is read from the token.
type Static struct {
	mu      sync.Mutex
	token   string
	subject string
}

// NewStatic returns a static source.
func NewStatic(token, subject string) *Static {
	return &Static{token: token, subject: subject}
}

// Credential implements mirchat.CredentialSource.
func (s *Static) Credential(context.Context) (mirchat.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fromToken(s.token, s.subject)
}

// Set replaces the token, e.g. after a refresh.
func (s *Static) Set(token, subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.subject = token, subject
}

// Forget clears the held token.
func (s *Static) Forget() error {
	s.Set("", "")
	return nil
}

// Env reads the token from an environment variable on every call.
type Env struct {
	Var string
}

// Credential implements mirchat.CredentialSource.
func (e Env) Credential(context.Context) (mirchat.Credential, error) {
	name := e.Var
	if name == "" {
		name = EnvToken
	}
	return fromToken(os.Getenv(name), "")
}

// File reads the token from a file on every call, so a token written by a
// separate login step is picked up once it appears.
type File struct {
	Path string
}

// DefaultTokenPath returns $XDG_CONFIG_HOME/mirchat/token, falling back to
// ~/.config/mirchat/token.
func DefaultTokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "mirchat", "token")
}

// Credential implements mirchat.CredentialSource.
func (f File) Credential(context.Context) (mirchat.Credential, error) {
	if f.Path == "" {
		return mirchat.Credential{}, mirchat.ErrCredentialUnavailable
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return mirchat.Credential{}, mirchat.WrapError(mirchat.ErrorCredentialUnavailable, "read token file", err)
	}
	return fromToken(string(data), "")
}

// Forget removes the token file. A missing file is not an error.
func (f File) Forget() error {
	if f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// Chain tries each source in order and returns the first credential.
type Chain []mirchat.CredentialSource

// Credential implements mirchat.CredentialSource.
func (c Chain) Credential(ctx context.Context) (mirchat.Credential, error) {
	var last error = mirchat.ErrCredentialUnavailable
	for _, src := range c {
		cred, err := src.Credential(ctx)
		if err == nil {
			return cred, nil
		}
		last = err
	}
	return mirchat.Credential{}, last
}

// Forget forgets every source that holds artifacts.
func (c Chain) Forget() error {
	var errs []error
	for _, src := range c {
		if f, ok := src.(mirchat.Forgetter); ok {
			if err := f.Forget(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
