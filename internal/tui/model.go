// Package tui renders a chat session in the terminal with bubbletea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/mirchat-sdk-go/mirchat"
)

const (
	intentTimeout = 5 * time.Second
	peerPaneWidth = 24
)

// Session is the part of *mirchat.Session the UI drives.
type Session interface {
	View() mirchat.View
	Connected() bool
	State() mirchat.ConnectionState
	SelectPeer(ctx context.Context, peerID string) error
	Send(ctx context.Context, body string) error
	SetForeground(foreground bool)
	SignOut(ctx context.Context) (string, error)
}

// Messages fed in from session callbacks.
type (
	UpdateMsg struct{}
	NoticeMsg struct{ Notice mirchat.Notice }
	StateMsg  struct{ Event mirchat.StateEvent }
)

type sentMsg struct {
	body string
	err  error
}

type selectedMsg struct{ err error }

type signedOutMsg struct {
	url string
	err error
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111"))
	unreadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	selfStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	onlineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx  context.Context
	sess Session

	input  textinput.Model
	thread viewport.Model

	view      mirchat.View
	state     mirchat.ConnectionState
	connected bool
	notice    *mirchat.Notice

	width, height int

	signedOut bool
	logoutURL string
}

// New returns a model bound to sess.
func New(ctx context.Context, sess Session) Model {
	in := textinput.New()
	in.Placeholder = "Select a peer with Tab, type, Enter to send"
	in.Prompt = "> "
	in.Focus()

	m := Model{
		ctx:       ctx,
		sess:      sess,
		input:     in,
		thread:    viewport.New(60, 15),
		state:     sess.State(),
		connected: sess.Connected(),
	}
	m.refresh()
	return m
}

// SignedOut reports whether the user signed out, with the logout URL to
// visit.
func (m Model) SignedOut() (bool, string) { return m.signedOut, m.logoutURL }

// Input returns the current input text.
func (m Model) Input() string { return m.input.Value() }

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case UpdateMsg:
		m.refresh()
		return m, nil

	case StateMsg:
		m.state = msg.Event.NewState
		m.connected = msg.Event.NewState == mirchat.StateOpen
		return m, nil

	case NoticeMsg:
		n := msg.Notice
		m.notice = &n
		return m, nil

	case tea.FocusMsg:
		return m, m.setForeground(true)

	case tea.BlurMsg:
		return m, m.setForeground(false)

	case sentMsg:
		if msg.err == nil {
			if m.input.Value() == msg.body {
				m.input.Reset()
			}
			m.notice = nil
		} else if mirchat.CodeOf(msg.err) == mirchat.ErrorUnknown {
			m.notice = &mirchat.Notice{Level: mirchat.NoticeWarning, Text: msg.err.Error()}
		}
		m.refresh()
		return m, nil

	case selectedMsg:
		if msg.err != nil {
			m.notice = &mirchat.Notice{Level: mirchat.NoticeWarning, Text: msg.err.Error()}
		}
		m.refresh()
		return m, nil

	case signedOutMsg:
		if msg.err != nil {
			m.notice = &mirchat.Notice{Level: mirchat.NoticeWarning, Text: msg.err.Error()}
			return m, nil
		}
		m.signedOut = true
		m.logoutURL = msg.url
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.notice = nil
			return m, nil
		case "tab":
			return m, m.cycle(1)
		case "shift+tab":
			return m, m.cycle(-1)
		case "enter":
			return m, m.send(m.input.Value())
		case "ctrl+o":
			return m, m.signOut()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.thread, cmd = m.thread.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	peers := m.renderPeers()
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.thread.View(),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Width(peerPaneWidth).Render(peers),
		paneStyle.Render(right),
	)

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	if m.notice != nil {
		b.WriteString(noticeStyle.Render("! " + m.notice.Text + "  (esc to dismiss)"))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("tab/shift+tab: peer  enter: send  ctrl+o: sign out  ctrl+c: quit"))
	return b.String()
}

func (m *Model) layout() {
	w := m.width - peerPaneWidth - 8
	if w < 20 {
		w = 20
	}
	h := m.height - 9
	if h < 3 {
		h = 3
	}
	m.thread.Width = w
	m.thread.Height = h
	m.input.Width = m.width - 4
}

func (m *Model) refresh() {
	m.view = m.sess.View()
	var b strings.Builder
	for i, msg := range m.view.Thread {
		if i > 0 {
			b.WriteString("\n")
		}
		label := msg.SenderLabel + ":"
		if msg.Self {
			label = selfStyle.Render(label)
		} else {
			label = lipgloss.NewStyle().Bold(true).Render(label)
		}
		b.WriteString(label + " " + msg.Body)
	}
	m.thread.SetContent(b.String())
	m.thread.GotoBottom()
}

func (m Model) renderPeers() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Friends"))
	b.WriteString("\n")
	if len(m.view.Peers) == 0 {
		b.WriteString(lipgloss.NewStyle().Faint(true).Render("no peers yet"))
		return b.String()
	}
	for _, p := range m.view.Peers {
		name := peerName(p)
		line := "  " + name
		if p.ID == m.view.Selected {
			line = selectedStyle.Render("> " + name)
		}
		if p.Unread {
			line += unreadStyle.Render(" *")
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderHeader() string {
	if m.view.Selected == "" {
		return titleStyle.Render("No conversation selected")
	}
	name := m.view.Selected
	for _, p := range m.view.Peers {
		if p.ID == m.view.Selected {
			name = peerName(p)
			break
		}
	}
	return titleStyle.Render("Chat with " + name)
}

// peerName tells unlisted senders apart, since they share one label.
func peerName(p mirchat.PeerView) string {
	if p.Unlisted {
		return p.DisplayName + " (" + p.ID + ")"
	}
	return p.DisplayName
}

func (m Model) renderStatus() string {
	if m.connected {
		return onlineStyle.Render("● online")
	}
	return offlineStyle.Render(fmt.Sprintf("○ offline (%s)", m.state))
}

// cycle selects the peer dir steps away from the current selection.
func (m Model) cycle(dir int) tea.Cmd {
	peers := m.view.Peers
	if len(peers) == 0 {
		return nil
	}
	idx := -1
	for i, p := range peers {
		if p.ID == m.view.Selected {
			idx = i
			break
		}
	}
	next := 0
	switch {
	case idx < 0 && dir < 0:
		next = len(peers) - 1
	case idx >= 0:
		next = (idx + dir + len(peers)) % len(peers)
	}
	id := peers[next].ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, intentTimeout)
		defer cancel()
		return selectedMsg{err: m.sess.SelectPeer(ctx, id)}
	}
}

func (m Model) send(body string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, intentTimeout)
		defer cancel()
		return sentMsg{body: body, err: m.sess.Send(ctx, body)}
	}
}

func (m Model) signOut() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, intentTimeout)
		defer cancel()
		url, err := m.sess.SignOut(ctx)
		return signedOutMsg{url: url, err: err}
	}
}

func (m Model) setForeground(visible bool) tea.Cmd {
	return func() tea.Msg {
		m.sess.SetForeground(visible)
		return nil
	}
}
