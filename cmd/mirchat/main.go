// Command mirchat is a terminal chat client.
//
// The token is read from MIRCHAT_TOKEN or from $XDG_CONFIG_HOME/mirchat/token.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/vovakirdan/mirchat-sdk-go/internal/tui"
	"github.com/vovakirdan/mirchat-sdk-go/mirchat"
	"github.com/vovakirdan/mirchat-sdk-go/mirchat/credentials"
	"github.com/vovakirdan/mirchat-sdk-go/mirchat/directory"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or TOML config file")
	channelURL := flag.String("channel", "", "Channel URL, overrides channel.url")
	apiURL := flag.String("api", "", "Directory base URL, overrides directory.base_url")
	tokenFile := flag.String("token-file", credentials.DefaultTokenPath(), "Token file")
	plain := flag.Bool("plain", false, "Line mode instead of the full-screen UI")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *channelURL, *apiURL, *tokenFile, *plain); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, channelURL, apiURL, tokenFile string, plain bool) error {
	cfg, err := loadConfig(configPath, channelURL, apiURL)
	if err != nil {
		return err
	}

	logger, closeLog, err := openLogger(cfg.Logging, plain)
	if err != nil {
		return err
	}
	defer closeLog()

	dir := directory.NewClient(cfg.Directory.BaseURL)

	sess := mirchat.NewSession(cfg)
	sess.SetLogger(logger)
	sess.SetCredentials(credentials.Chain{
		credentials.Env{},
		credentials.File{Path: tokenFile},
	})
	sess.SetPeerSource(dir)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	runErr := make(chan error, 1)

	var logoutURL string
	var signedOut bool
	if plain {
		repl := newREPL(sess, os.Stdin, os.Stdout)
		go func() { runErr <- sess.Run(runCtx) }()
		signedOut, logoutURL, err = repl.run(runCtx)
	} else {
		signedOut, logoutURL, err = runTUI(runCtx, sess, runErr)
	}
	stop()
	if rerr := <-runErr; rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return err
	}

	if signedOut {
		fmt.Println("Signed out.")
		if logoutURL != "" {
			fmt.Printf("Finish logout at: %s\n", color.CyanString(logoutURL))
		}
	}
	return nil
}

func runTUI(ctx context.Context, sess *mirchat.Session, runErr chan<- error) (bool, string, error) {
	p := tea.NewProgram(tui.New(ctx, sess), tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))
	sess.OnUpdate(func() { p.Send(tui.UpdateMsg{}) })
	sess.OnNotice(func(n mirchat.Notice) { p.Send(tui.NoticeMsg{Notice: n}) })
	sess.OnStateChanged(func(ev mirchat.StateEvent) { p.Send(tui.StateMsg{Event: ev}) })

	go func() { runErr <- sess.Run(ctx) }()

	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return false, "", fmt.Errorf("ui: %w", err)
	}
	m, ok := final.(tui.Model)
	if !ok {
		return false, "", nil
	}
	signedOut, url := m.SignedOut()
	return signedOut, url, nil
}

func loadConfig(path, channelURL, apiURL string) (mirchat.Config, error) {
	cfg := mirchat.DefaultConfig()
	if path != "" {
		loaded, err := mirchat.LoadConfig(path)
		if err != nil && !errors.Is(err, mirchat.ErrInvalidConfig) {
			return cfg, err
		}
		// Flags may still fill in what the file left out.
		cfg = loaded
	}
	if channelURL != "" {
		cfg.Channel.URL = channelURL
	}
	if apiURL != "" {
		cfg.Directory.BaseURL = apiURL
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openLogger keeps logs off the terminal in full-screen mode unless a file is
// configured.
func openLogger(cfg mirchat.LoggingConfig, plain bool) (*slog.Logger, func(), error) {
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		return mirchat.NewLogger(cfg, f), func() { _ = f.Close() }, nil
	}
	var w io.Writer = io.Discard
	if plain {
		w = os.Stderr
	}
	return mirchat.NewLogger(cfg, w), func() {}, nil
}
