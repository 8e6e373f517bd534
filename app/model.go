// Package app provides the terminal chat interface: a full-screen TUI
// built on bubbletea and a line-oriented plain mode for dumb terminals
// and scripting. Both drive the same chat.Controller.
package app

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/chat"
)

// keyMap holds the key bindings shown in the status bar.
type keyMap struct {
	Send    key.Binding
	Newline key.Binding
	Abort   key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Newline: key.NewBinding(
			key.WithKeys("alt+enter", "ctrl+j"),
			key.WithHelp("alt+enter", "newline"),
		),
		Abort: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "abort turn"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// Model is the root TUI model for one chat session.
type Model struct {
	client *api.Client
	ctrl   *chat.Controller
	thread *chat.Thread

	listener *threadListener

	// UI components
	vp    viewport.Model
	input textarea.Model
	spin  spinner.Model
	keys  keyMap
	md    *markdownRenderer

	// UI state
	width, height int
	ready         bool
	follow        bool // stick to the bottom while streaming
	lastError     string
	notice        string

	// Session picker overlay (/sessions)
	overlayVisible  bool
	overlaySessions []api.Session
	overlayIndex    int

	ctx context.Context
}

// NewModel creates the root model. The controller must already be
// attached to a session.
func NewModel(ctx context.Context, client *api.Client, ctrl *chat.Controller) Model {
	ta := textarea.New()
	ta.Placeholder = "Message the agent. /help for commands."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.Prompt = "┃ "
	// Enter sends; newline moves to alt+enter / ctrl+j.
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	listener := newThreadListener()
	ctrl.Thread().AddObserver(listener)

	return Model{
		ctx:      ctx,
		client:   client,
		ctrl:     ctrl,
		thread:   ctrl.Thread(),
		listener: listener,
		input:    ta,
		spin:     sp,
		keys:     defaultKeyMap(),
		md:       newMarkdownRenderer(80),
		follow:   true,
	}
}

// Init starts the event listener, cursor blink, and spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.listener.events),
		textarea.Blink,
		m.spin.Tick,
	)
}

// Message types
type (
	errMsg struct{ err error }
	// noticeMsg carries a transient status line note.
	noticeMsg struct{ text string }
	// sessionsLoadedMsg carries the session list for /sessions.
	sessionsLoadedMsg struct{ sessions []api.Session }
	// switchedMsg reports a completed session switch.
	switchedMsg struct{ id string }
)

// sendCmd posts the typed message through the controller.
func (m Model) sendCmd(content string) tea.Cmd {
	ctrl := m.ctrl
	ctx := m.ctx
	return func() tea.Msg {
		if err := ctrl.Send(ctx, content, ""); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

// sendFileCmd posts a message with an attachment.
func (m Model) sendFileCmd(content, path string) tea.Cmd {
	ctrl := m.ctrl
	ctx := m.ctx
	return func() tea.Msg {
		if err := api.ValidateAttachment(path); err != nil {
			return errMsg{err}
		}
		if err := ctrl.Send(ctx, content, path); err != nil {
			return errMsg{err}
		}
		return noticeMsg{text: "attached " + path}
	}
}

// listSessionsCmd fetches the session list.
func (m Model) listSessionsCmd() tea.Cmd {
	client := m.client
	ctx := m.ctx
	return func() tea.Msg {
		sessions, err := client.ListSessions(ctx)
		if err != nil {
			return errMsg{err}
		}
		return sessionsLoadedMsg{sessions: sessions}
	}
}

// switchCmd moves the controller to another session.
func (m Model) switchCmd(id string) tea.Cmd {
	ctrl := m.ctrl
	ctx := m.ctx
	return func() tea.Msg {
		if err := ctrl.Switch(ctx, id); err != nil {
			return errMsg{err}
		}
		return switchedMsg{id: id}
	}
}

// newSessionCmd creates a session and switches to it.
func (m Model) newSessionCmd(title string) tea.Cmd {
	client := m.client
	ctrl := m.ctrl
	ctx := m.ctx
	return func() tea.Msg {
		sess, err := client.CreateSession(ctx, title)
		if err != nil {
			return errMsg{err}
		}
		if err := ctrl.Switch(ctx, sess.ID); err != nil {
			return errMsg{err}
		}
		return switchedMsg{id: sess.ID}
	}
}

// compactCmd asks the server to compact the current session's history.
func (m Model) compactCmd() tea.Cmd {
	client := m.client
	ctrl := m.ctrl
	ctx := m.ctx
	return func() tea.Msg {
		id := ctrl.SessionID()
		if id == "" {
			return errMsg{chat.ErrNoSession}
		}
		if err := client.CompactSession(ctx, id); err != nil {
			return errMsg{err}
		}
		if err := ctrl.LoadHistory(ctx); err != nil {
			return errMsg{err}
		}
		return noticeMsg{text: "session compacted"}
	}
}

// streamingNow reports whether a turn is in flight.
func (m Model) streamingNow() bool {
	return !m.thread.State().CanSend()
}

// trimmedInput returns the input content without surrounding space.
func (m Model) trimmedInput() string {
	return strings.TrimSpace(m.input.Value())
}

// sessionLabel is the top bar text for the current session.
func (m Model) sessionLabel() string {
	title := m.thread.Title()
	if title != "" {
		return title
	}
	if id := m.ctrl.SessionID(); id != "" {
		return "session " + shortID(id)
	}
	return "no session"
}

// shortID abbreviates a UUID-ish id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
