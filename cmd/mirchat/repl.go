package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/vovakirdan/mirchat-sdk-go/mirchat"
)

var (
	peerColor   = color.New(color.FgCyan, color.Bold)
	warnColor   = color.New(color.FgYellow)
	statusColor = color.New(color.FgHiBlack)
)

// repl is the line-oriented front end used with -plain.
type repl struct {
	sess *mirchat.Session
	in   io.Reader
	out  io.Writer

	mu   sync.Mutex
	seen map[string]int // printed messages per thread
}

func newREPL(sess *mirchat.Session, in io.Reader, out io.Writer) *repl {
	r := &repl{sess: sess, in: in, out: out, seen: make(map[string]int)}
	sess.OnUpdate(r.printNew)
	sess.OnNotice(func(n mirchat.Notice) {
		warnColor.Fprintf(r.out, "[%s] %s\n", n.Level, n.Text)
	})
	sess.OnStateChanged(func(ev mirchat.StateEvent) {
		statusColor.Fprintf(r.out, "[channel] %s -> %s\n", ev.OldState, ev.NewState)
	})
	return r
}

func (r *repl) run(ctx context.Context) (bool, string, error) {
	fmt.Fprintln(r.out, "Type a message and press Enter. /help for commands. Ctrl+C to quit.")

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
			return
		}
		errCh <- io.EOF
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return false, "", nil
		case err := <-errCh:
			if err == io.EOF {
				return false, "", nil
			}
			return false, "", fmt.Errorf("reading input: %w", err)
		case line = <-lines:
		}

		line = strings.TrimRight(line, "\r")
		cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch cmd {
		case "/quit", "/exit", "/q":
			return false, "", nil
		case "/help":
			r.printHelp()
		case "/peers":
			r.printPeers()
		case "/use":
			r.use(ctx, strings.TrimSpace(arg))
		case "/signout":
			url, err := r.sess.SignOut(ctx)
			if err != nil {
				warnColor.Fprintf(r.out, "[error] %v\n", err)
				continue
			}
			return true, url, nil
		default:
			// Validation failures are reported through OnNotice.
			_ = r.sess.Send(ctx, line)
		}
	}
}

func (r *repl) use(ctx context.Context, arg string) {
	if arg == "" {
		if err := r.sess.SelectPeer(ctx, ""); err == nil {
			fmt.Fprintln(r.out, "Cleared selection")
		}
		return
	}
	for _, p := range r.sess.View().Peers {
		if p.ID == arg || strings.EqualFold(p.DisplayName, arg) {
			if err := r.sess.SelectPeer(ctx, p.ID); err != nil {
				warnColor.Fprintf(r.out, "[error] %v\n", err)
				return
			}
			fmt.Fprintf(r.out, "Now chatting with %s\n", peerColor.Sprint(p.DisplayName))
			return
		}
	}
	warnColor.Fprintf(r.out, "unknown peer %q, see /peers\n", arg)
}

func (r *repl) printPeers() {
	v := r.sess.View()
	if len(v.Peers) == 0 {
		fmt.Fprintln(r.out, "No peers yet.")
		return
	}
	for _, p := range v.Peers {
		marker := " "
		if p.ID == v.Selected {
			marker = ">"
		}
		unread := ""
		if p.Unread {
			unread = warnColor.Sprint(" (unread)")
		}
		fmt.Fprintf(r.out, "%s %s [%s]%s\n", marker, peerColor.Sprint(p.DisplayName), p.ID, unread)
	}
}

// printNew prints inbound messages that were not printed yet.
func (r *repl) printNew() {
	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.sess.Store()
	for _, p := range store.View().Peers {
		thread := store.Thread(p.ID)
		for _, msg := range thread[min(r.seen[p.ID], len(thread)):] {
			if msg.Self {
				continue
			}
			label := msg.SenderLabel
			if p.Unlisted {
				label += " (" + p.ID + ")"
			}
			fmt.Fprintf(r.out, "%s: %s\n", peerColor.Sprint(label), msg.Body)
		}
		r.seen[p.ID] = len(thread)
	}
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  /peers        list peers")
	fmt.Fprintln(r.out, "  /use <peer>   select a peer by id or name")
	fmt.Fprintln(r.out, "  /signout      sign out and end the session")
	fmt.Fprintln(r.out, "  /quit         exit")
}
