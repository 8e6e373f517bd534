package app

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/chat"
)

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.overlayVisible {
			return m.handleOverlayKeys(msg)
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.ctrl.Close()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Abort):
			if m.streamingNow() {
				m.ctrl.Abort()
				m.notice = "turn aborted"
				m.lastError = ""
			}
			return m, nil

		case key.Matches(msg, m.keys.Send):
			return m.handleSubmit()
		}

		// Scrolling keys go to the viewport, everything else to the
		// input. Manual scrolling releases bottom-follow until the
		// user returns to the bottom.
		switch msg.String() {
		case "pgup", "pgdown", "home", "end":
			var vpCmd tea.Cmd
			m.vp, vpCmd = m.vp.Update(msg)
			m.follow = m.vp.AtBottom()
			return m, vpCmd
		}
		var tiCmd tea.Cmd
		m.input, tiCmd = m.input.Update(msg)
		return m, tiCmd

	case tea.MouseMsg:
		var vpCmd tea.Cmd
		m.vp, vpCmd = m.vp.Update(msg)
		m.follow = m.vp.AtBottom()
		return m, vpCmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Top bar, input box with border, status bar.
		vpHeight := msg.Height - 1 - (m.input.Height() + 2) - 1 - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.vp = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = vpHeight
		}
		m.input.SetWidth(msg.Width - 4)
		m.md.setWidth(msg.Width - 6)
		m.vp.SetContent(m.renderThread())
		if m.follow {
			m.vp.GotoBottom()
		}
		return m, nil

	case threadEventMsg:
		cmds = append(cmds, waitForEvent(m.listener.events))
		switch e := msg.event.(type) {
		case chat.MessagesChanged:
			if m.ready {
				m.vp.SetContent(m.renderThread())
				if m.follow {
					m.vp.GotoBottom()
				}
			}
		case chat.StateChanged:
			if e.New == chat.StreamStreaming {
				m.lastError = ""
				m.notice = ""
				m.follow = true
				cmds = append(cmds, m.spin.Tick)
			}
		case chat.TurnFailed:
			m.lastError = humanizeError(e.Err)
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		if m.streamingNow() {
			var spCmd tea.Cmd
			m.spin, spCmd = m.spin.Update(msg)
			return m, spCmd
		}
		return m, nil

	case errMsg:
		m.lastError = humanizeError(msg.err)
		return m, nil

	case noticeMsg:
		m.notice = msg.text
		m.lastError = ""
		return m, nil

	case sessionsLoadedMsg:
		if len(msg.sessions) == 0 {
			m.notice = "no sessions; /new to start one"
			return m, nil
		}
		m.overlaySessions = msg.sessions
		m.overlayIndex = 0
		m.overlayVisible = true
		return m, nil

	case switchedMsg:
		m.notice = "switched to " + shortID(msg.id)
		m.lastError = ""
		m.follow = true
		if m.ready {
			m.vp.SetContent(m.renderThread())
			m.vp.GotoBottom()
		}
		return m, nil
	}

	return m, tea.Batch(cmds...)
}

// handleSubmit sends the typed input or dispatches a slash command.
func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := m.trimmedInput()
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		return m.handleCommand(text)
	}
	if m.streamingNow() {
		m.lastError = "a reply is still streaming; esc aborts it"
		return m, nil
	}
	m.input.Reset()
	m.follow = true
	return m, m.sendCmd(text)
}

// handleCommand dispatches /commands typed into the input.
func (m Model) handleCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	m.lastError = ""

	switch fields[0] {
	case "/help":
		m.input.Reset()
		m.notice = "/sessions · /switch <id> · /new [title] · /compact · /attach <path> [message] · /abort · /quit"
		return m, nil

	case "/quit":
		m.ctrl.Close()
		return m, tea.Quit

	case "/abort":
		if m.streamingNow() {
			m.ctrl.Abort()
			m.notice = "turn aborted"
		}
		m.input.Reset()
		return m, nil

	case "/sessions":
		m.input.Reset()
		return m, m.listSessionsCmd()

	case "/switch":
		if len(fields) < 2 {
			m.lastError = "usage: /switch <session-id>"
			return m, nil
		}
		m.input.Reset()
		return m, m.switchCmd(fields[1])

	case "/new":
		m.input.Reset()
		return m, m.newSessionCmd(strings.Join(fields[1:], " "))

	case "/compact":
		m.input.Reset()
		return m, m.compactCmd()

	case "/attach":
		if len(fields) < 2 {
			m.lastError = "usage: /attach <path> [message]"
			return m, nil
		}
		if m.streamingNow() {
			m.lastError = "a reply is still streaming; esc aborts it"
			return m, nil
		}
		m.input.Reset()
		m.follow = true
		return m, m.sendFileCmd(strings.Join(fields[2:], " "), fields[1])

	default:
		m.lastError = "unknown command " + fields[0] + "; /help lists commands"
		return m, nil
	}
}

// handleOverlayKeys drives the session picker overlay.
func (m Model) handleOverlayKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.overlayIndex > 0 {
			m.overlayIndex--
		}
	case "down", "j":
		if m.overlayIndex < len(m.overlaySessions)-1 {
			m.overlayIndex++
		}
	case "enter":
		id := m.overlaySessions[m.overlayIndex].ID
		m.overlayVisible = false
		m.overlaySessions = nil
		return m, m.switchCmd(id)
	case "esc", "q":
		m.overlayVisible = false
		m.overlaySessions = nil
	case "ctrl+c":
		m.ctrl.Close()
		return m, tea.Quit
	}
	return m, nil
}

// humanizeError turns controller and API errors into one status line.
func humanizeError(err error) string {
	var authErr *api.AuthExpiredError
	switch {
	case errors.As(err, &authErr), errors.Is(err, api.ErrNoCredentials):
		return "not logged in; run `quill login`"
	case errors.Is(err, api.ErrSessionNotFound):
		return "session is gone on the server; /sessions to pick another"
	case errors.Is(err, chat.ErrStreamActive):
		return "a reply is still streaming; esc aborts it"
	case errors.Is(err, chat.ErrNoSession):
		return "no session attached; /new starts one"
	case errors.Is(err, api.ErrAttachmentType):
		return "unsupported attachment type"
	case errors.Is(err, api.ErrAttachmentTooLarge):
		return "attachment exceeds the 20 MiB limit"
	}
	var streamErr *chat.StreamError
	if errors.As(err, &streamErr) {
		switch {
		case streamErr.Detail != "":
			return "turn failed: " + streamErr.Detail
		case streamErr.Cause != nil:
			return "turn failed: " + streamErr.Cause.Error()
		default:
			return "turn failed"
		}
	}
	return err.Error()
}
