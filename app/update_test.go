package app

import (
	"context"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/chat"
	"github.com/bazelment/quill/protocol"
)

// newTestModel builds a ready model against a client that never talks
// to the network. Commands returned by Update are not executed unless a
// test runs them.
func newTestModel(t *testing.T) Model {
	t.Helper()
	store := api.NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	client := api.NewClient(api.Config{BaseURL: "http://127.0.0.1:1"}, store)
	thread := chat.NewThread()
	ctrl := chat.NewController(client, thread)
	t.Cleanup(ctrl.Close)

	m := NewModel(context.Background(), client, ctrl)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestWindowSizeMakesReady(t *testing.T) {
	m := newTestModel(t)
	assert.True(t, m.ready)
	assert.Equal(t, 80, m.vp.Width)
	assert.NotEqual(t, "Loading...", m.View())
}

func TestSubmitEmptyInputDoesNothing(t *testing.T) {
	m := newTestModel(t)
	next, cmd := m.handleSubmit()
	assert.Nil(t, cmd)
	assert.Empty(t, next.(Model).lastError)
}

func TestHelpCommandSetsNotice(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("/help")
	next, _ := m.handleSubmit()
	m2 := next.(Model)
	assert.Contains(t, m2.notice, "/sessions")
	assert.Empty(t, m2.trimmedInput())
}

func TestUnknownCommandSetsError(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("/frobnicate")
	next, _ := m.handleSubmit()
	assert.Contains(t, next.(Model).lastError, "unknown command /frobnicate")
}

func TestCommandUsageErrors(t *testing.T) {
	m := newTestModel(t)

	m.input.SetValue("/switch")
	next, cmd := m.handleSubmit()
	assert.Nil(t, cmd)
	assert.Equal(t, "usage: /switch <session-id>", next.(Model).lastError)

	m.input.SetValue("/attach")
	next, cmd = m.handleSubmit()
	assert.Nil(t, cmd)
	assert.Equal(t, "usage: /attach <path> [message]", next.(Model).lastError)
}

func TestSendReturnsCommandAndClearsInput(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("hello agent")
	next, cmd := m.handleSubmit()
	m2 := next.(Model)
	assert.NotNil(t, cmd)
	assert.Empty(t, m2.trimmedInput())
	assert.True(t, m2.follow)
}

func TestQuitKeyQuits(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestThreadEventRepaintsAndRearms(t *testing.T) {
	m := newTestModel(t)
	m.thread.Absorb(protocol.Message{
		ID:        1,
		Role:      protocol.RoleAssistant,
		Kind:      protocol.KindText,
		Content:   "hello there",
		CreatedAt: "2025-03-04T09:15:42",
	})

	next, cmd := m.Update(threadEventMsg{event: chat.MessagesChanged{}})
	m2 := next.(Model)
	assert.NotNil(t, cmd, "listener must be re-armed after every event")
	assert.Contains(t, m2.View(), "hello")
}

func TestStreamStartClearsStatusLine(t *testing.T) {
	m := newTestModel(t)
	m.lastError = "stale error"
	m.notice = "stale notice"
	m.follow = false

	next, _ := m.Update(threadEventMsg{event: chat.StateChanged{
		Old: chat.StreamIdle, New: chat.StreamStreaming,
	}})
	m2 := next.(Model)
	assert.Empty(t, m2.lastError)
	assert.Empty(t, m2.notice)
	assert.True(t, m2.follow)
}

func TestTurnFailedShowsHumanizedError(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(threadEventMsg{event: chat.TurnFailed{Err: chat.ErrNoSession}})
	assert.Equal(t, "no session attached; /new starts one", next.(Model).lastError)
}

func TestErrMsgIsHumanized(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(errMsg{err: api.ErrNoCredentials})
	assert.Equal(t, "not logged in; run `quill login`", next.(Model).lastError)
}

func TestSessionsLoadedOpensOverlay(t *testing.T) {
	m := newTestModel(t)
	sessions := []api.Session{
		{ID: "aaa", Title: "first"},
		{ID: "bbb", Title: "second"},
	}
	next, _ := m.Update(sessionsLoadedMsg{sessions: sessions})
	m2 := next.(Model)
	assert.True(t, m2.overlayVisible)
	assert.Equal(t, 0, m2.overlayIndex)

	empty, _ := m.Update(sessionsLoadedMsg{})
	m3 := empty.(Model)
	assert.False(t, m3.overlayVisible)
	assert.Contains(t, m3.notice, "no sessions")
}

func TestOverlayNavigation(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(sessionsLoadedMsg{sessions: []api.Session{
		{ID: "aaa"}, {ID: "bbb"}, {ID: "ccc"},
	}})
	m = next.(Model)

	next, _ = m.Update(keyRune('j'))
	m = next.(Model)
	assert.Equal(t, 1, m.overlayIndex)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Equal(t, 2, m.overlayIndex)

	// Clamped at the bottom.
	next, _ = m.Update(keyRune('j'))
	m = next.(Model)
	assert.Equal(t, 2, m.overlayIndex)

	next, _ = m.Update(keyRune('k'))
	m = next.(Model)
	assert.Equal(t, 1, m.overlayIndex)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	assert.False(t, m.overlayVisible)
	assert.Nil(t, m.overlaySessions)
}

func TestOverlayEnterSwitches(t *testing.T) {
	m := newTestModel(t)
	next, _ := m.Update(sessionsLoadedMsg{sessions: []api.Session{
		{ID: "aaa"}, {ID: "bbb"},
	}})
	m = next.(Model)

	next, _ = m.Update(keyRune('j'))
	m = next.(Model)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.False(t, m.overlayVisible)
	assert.NotNil(t, cmd, "enter must produce a switch command")
}

func TestSwitchedMsgUpdatesNotice(t *testing.T) {
	m := newTestModel(t)
	m.lastError = "old"
	next, _ := m.Update(switchedMsg{id: "0c2f3a4b-9d1e-4f6a"})
	m2 := next.(Model)
	assert.Equal(t, "switched to 0c2f3a4b", m2.notice)
	assert.Empty(t, m2.lastError)
	assert.True(t, m2.follow)
}

func TestHumanizeError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"auth expired", &api.AuthExpiredError{}, "not logged in; run `quill login`"},
		{"no credentials", api.ErrNoCredentials, "not logged in; run `quill login`"},
		{"session gone", api.ErrSessionNotFound, "session is gone on the server; /sessions to pick another"},
		{"stream active", chat.ErrStreamActive, "a reply is still streaming; esc aborts it"},
		{"no session", chat.ErrNoSession, "no session attached; /new starts one"},
		{"bad attachment", api.ErrAttachmentType, "unsupported attachment type"},
		{"big attachment", api.ErrAttachmentTooLarge, "attachment exceeds the 20 MiB limit"},
		{"stream error", &chat.StreamError{Detail: "model overloaded"}, "turn failed: model overloaded"},
		{"anything else", assert.AnError, assert.AnError.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, humanizeError(tc.err))
		})
	}
}
