package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/mirchat-sdk-go/mirchat"
)

func TestLoadConfigFlagsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirchat.yaml")
	if err := os.WriteFile(path, []byte("messages:\n  max_length: 42\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	// The file alone is incomplete; flags fill in the endpoints.
	cfg, err := loadConfig(path, "ws://localhost:8080/ws", "http://localhost:8080")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Messages.MaxLength != 42 {
		t.Fatalf("max_length = %d, want 42", cfg.Messages.MaxLength)
	}
	if cfg.Channel.URL != "ws://localhost:8080/ws" {
		t.Fatalf("channel url = %q", cfg.Channel.URL)
	}
}

func TestLoadConfigRequiresEndpoints(t *testing.T) {
	_, err := loadConfig("", "", "")
	if !errors.Is(err, mirchat.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestREPLCommands(t *testing.T) {
	cfg := mirchat.DefaultConfig()
	cfg.Channel.URL = "ws://localhost:1/ws"
	cfg.Directory.BaseURL = "http://localhost:1"
	sess := mirchat.NewSession(cfg)

	in := strings.NewReader("/help\n/peers\n/use nobody\nhello\n/signout\n")
	var out bytes.Buffer
	r := newREPL(sess, in, &out)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	signedOut, url, err := r.run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !signedOut || url != "" {
		t.Fatalf("signedOut=%v url=%q", signedOut, url)
	}
	if err := <-runErr; err != nil {
		t.Fatalf("session: %v", err)
	}

	got := out.String()
	for _, want := range []string{"/signout", "No peers yet.", `unknown peer "nobody"`, "no recipient selected"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestREPLPrintsUnlistedSenders(t *testing.T) {
	cfg := mirchat.DefaultConfig()
	cfg.Messages.UnknownLabel = "Stranger"
	sess := mirchat.NewSession(cfg)
	sess.Store().ReplacePeers([]mirchat.Peer{{ID: "a", DisplayName: "Alice"}})
	sess.Store().AppendMessage("z", mirchat.Message{SenderLabel: "Stranger", Body: "hey"})

	var out bytes.Buffer
	r := newREPL(sess, strings.NewReader(""), &out)
	r.printNew()
	r.printPeers()

	got := out.String()
	for _, want := range []string{"Stranger (z)", ": hey", "[z]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}
