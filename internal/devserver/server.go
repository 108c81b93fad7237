// Package devserver is a local backend for the chat client: a user
// directory and a websocket channel that routes "sendmessage" frames between
// connected users. Tokens are HS256 JWTs whose subject is the user id.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vovakirdan/mirchat-sdk-go/mirchat"
)

const deliverTimeout = 5 * time.Second

// User is a directory entry.
type User struct {
	ID   string
	Name string
}

type inboundFrame struct {
	FromUser string `json:"from_user"`
	Message  string `json:"message"`
}

type peerConn struct {
	id string
	ws *websocket.Conn
}

// Server routes messages between connected users.
type Server struct {
	secret []byte
	users  []User
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*peerConn // by user id
}

// New creates a server for a fixed set of users.
func New(secret []byte, users []User, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		secret: secret,
		users:  users,
		logger: logger,
		conns:  make(map[string]*peerConn),
	}
}

// IssueToken signs a token for userID.
func (s *Server) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Handler returns the HTTP handler serving /v1/users and /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users", s.handleUsers)
	mux.HandleFunc("GET /ws", s.handleChannel)
	return mux
}

// Connected reports whether userID holds an open channel.
func (s *Server) Connected(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[userID]
	return ok
}

// Disconnect closes userID's channel from the server side.
func (s *Server) Disconnect(userID string) {
	s.mu.Lock()
	pc := s.conns[userID]
	delete(s.conns, userID)
	s.mu.Unlock()
	if pc != nil {
		_ = pc.ws.Close(websocket.StatusGoingAway, "server disconnect")
	}
}

func (s *Server) authenticate(token string) (string, error) {
	if token == "" {
		return "", errors.New("missing token")
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
		return
	}
	if _, err := s.authenticate(token); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}

	type user struct {
		UserID   string `json:"userId"`
		UserName string `json:"userName"`
	}
	users := make([]user, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, user{UserID: u.ID, UserName: u.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statusCode": http.StatusOK,
		"body":       map[string]any{"users": users},
	})
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	sub, err := s.authenticate(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Warn("accept failed", "user", sub, "error", err)
		return
	}
	pc := &peerConn{id: uuid.NewString(), ws: ws}
	s.register(sub, pc)
	defer s.unregister(sub, pc)

	s.logger.Info("channel opened", "user", sub, "conn", pc.id)
	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			s.logger.Info("channel closed", "user", sub, "conn", pc.id, "status", websocket.CloseStatus(err).String())
			return
		}
		var f mirchat.OutboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Debug("ignoring undecodable frame", "user", sub)
			continue
		}
		if f.Route != "sendmessage" || f.To == "" {
			s.logger.Debug("ignoring frame", "user", sub, "route", f.Route)
			continue
		}
		if err := s.deliver(f.To, inboundFrame{FromUser: sub, Message: f.Message}); err != nil {
			s.logger.Debug("delivery skipped", "from", sub, "to", f.To, "error", err)
		}
	}
}

func (s *Server) register(userID string, pc *peerConn) {
	s.mu.Lock()
	old := s.conns[userID]
	s.conns[userID] = pc
	s.mu.Unlock()
	if old != nil {
		go old.ws.Close(websocket.StatusPolicyViolation, "replaced by a newer connection")
	}
}

func (s *Server) unregister(userID string, pc *peerConn) {
	s.mu.Lock()
	if s.conns[userID] == pc {
		delete(s.conns, userID)
	}
	s.mu.Unlock()
	_ = pc.ws.CloseNow()
}

// deliver writes under its own deadline. An expired write context closes the
// target connection.
func (s *Server) deliver(to string, frame inboundFrame) error {
	s.mu.Lock()
	target := s.conns[to]
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("user %q is not connected", to)
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	return wsjson.Write(ctx, target.ws, frame)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
