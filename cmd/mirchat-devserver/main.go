// Command mirchat-devserver runs a local backend for mirchat and prints a
// token per user.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/vovakirdan/mirchat-sdk-go/internal/devserver"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "Listen address")
	secret := flag.String("secret", "dev-secret", "HS256 signing secret")
	users := flag.String("users", "alice:Alice,bob:Bob,charlie:Charlie", "Comma separated id:name pairs")
	ttl := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of printed tokens")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addr, *secret, *users, *ttl, logger); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, secret, userList string, ttl time.Duration, logger *slog.Logger) error {
	users, err := parseUsers(userList)
	if err != nil {
		return err
	}
	srv := devserver.New([]byte(secret), users, logger)

	fmt.Printf("mirchat-devserver listening on %s\n", color.CyanString(addr))
	fmt.Printf("  channel:   ws://%s/ws\n", addr)
	fmt.Printf("  directory: http://%s\n\n", addr)
	for _, u := range users {
		token, err := srv.IssueToken(u.ID, ttl)
		if err != nil {
			return fmt.Errorf("issuing token for %s: %w", u.ID, err)
		}
		fmt.Printf("%s\tMIRCHAT_TOKEN=%s\n", color.GreenString(u.Name), token)
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func parseUsers(s string) ([]devserver.User, error) {
	var users []devserver.User
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, name, ok := strings.Cut(pair, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid user %q, want id:name", pair)
		}
		if name == "" {
			name = id
		}
		users = append(users, devserver.User{ID: id, Name: name})
	}
	if len(users) == 0 {
		return nil, errors.New("no users configured")
	}
	return users, nil
}
