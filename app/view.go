package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/bazelment/quill/chat"
	"github.com/bazelment/quill/protocol"
)

// Styles
var (
	topBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("242"))

	userHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	agentHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("12"))

	toolHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	thinkingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	streamingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	overlayBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("240")).
			Foreground(lipgloss.Color("15"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))
)

// View renders the model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	center := m.vp.View()
	if m.overlayVisible {
		center = lipgloss.Place(m.width, m.vp.Height, lipgloss.Center, lipgloss.Center, m.renderSessionPicker())
	}

	var b strings.Builder
	b.WriteString(m.renderTopBar())
	b.WriteByte('\n')
	b.WriteString(center)
	b.WriteByte('\n')
	b.WriteString(inputBoxStyle.Width(m.width - 2).Render(m.input.View()))
	b.WriteByte('\n')
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderTopBar() string {
	left := "quill · " + m.sessionLabel()

	var right string
	switch m.thread.State() {
	case chat.StreamStreaming:
		right = m.spin.View() + streamingStyle.Render("streaming")
	case chat.StreamFailed:
		right = errorStyle.Render("failed")
	case chat.StreamAborted:
		right = dimStyle.Render("aborted")
	default:
		right = dimStyle.Render("ready")
	}

	inner := m.width - 2 // bar padding
	gap := inner - runewidth.StringWidth(left) - lipgloss.Width(right)
	if gap < 1 {
		left = runewidth.Truncate(left, inner-lipgloss.Width(right)-1, "…")
		gap = 1
	}
	return topBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderStatusBar() string {
	if m.lastError != "" {
		return statusBarStyle.Width(m.width).Render(errorStyle.Render(" " + truncateToWidth(m.lastError, m.width-2)))
	}
	if m.notice != "" {
		return statusBarStyle.Width(m.width).Render(noticeStyle.Render(" " + truncateToWidth(m.notice, m.width-2)))
	}
	hints := " enter send · alt+enter newline · esc abort · pgup/pgdn scroll · ctrl+c quit"
	return statusBarStyle.Width(m.width).Render(truncateToWidth(hints, m.width-1))
}

// renderSessionPicker renders the /sessions overlay.
func (m Model) renderSessionPicker() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sessions"))
	b.WriteString("\n\n")

	boxWidth := m.width / 2
	if boxWidth < 40 {
		boxWidth = 40
	}
	for i, s := range m.overlaySessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		line := truncateToWidth(shortID(s.ID)+"  "+title, boxWidth-16)
		if s.UpdatedAt != "" {
			line += dimStyle.Render("  " + clockFromTimestamp(s.UpdatedAt))
		}
		if i == m.overlayIndex {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("\n" + dimStyle.Render("enter switch · esc close"))
	return overlayBoxStyle.Render(b.String())
}

// renderThread renders the full transcript for the viewport.
func (m Model) renderThread() string {
	msgs := m.thread.Messages()
	if len(msgs) == 0 {
		return dimStyle.Render("\n  No messages yet. Say something.")
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m Model) renderMessage(msg chat.Message) string {
	header := m.renderHeader(msg)
	body := m.renderBody(msg)
	if body == "" {
		return header
	}
	return header + "\n" + body
}

func (m Model) renderHeader(msg chat.Message) string {
	ts := clockFromTimestamp(msg.CreatedAt)
	var who string
	switch {
	case msg.Kind == protocol.KindUserInput:
		who = userHeaderStyle.Render("you")
	case msg.Kind == protocol.KindThinking:
		who = thinkingStyle.Render("thinking")
	case msg.Kind == protocol.KindAction:
		who = toolHeaderStyle.Render("action")
	case msg.Kind == protocol.KindObservation, msg.Kind == protocol.KindErrorObservation:
		who = toolHeaderStyle.Render("result")
	case msg.Kind == protocol.KindError:
		who = errorStyle.Render("error")
	case msg.Role == protocol.RoleAssistant:
		who = agentHeaderStyle.Render("agent")
	default:
		who = dimStyle.Render(string(msg.Role))
	}

	suffix := ""
	if msg.Optimistic() {
		suffix = dimStyle.Render("  (sending…)")
	} else if ts != "" {
		suffix = dimStyle.Render("  " + ts)
	}
	return who + suffix
}

func (m Model) renderBody(msg chat.Message) string {
	content := msg.Content
	switch msg.Kind {
	case protocol.KindText:
		if msg.Role != protocol.RoleAssistant {
			return indent(content)
		}
		if msg.Streaming {
			return indent(content + "▌")
		}
		return indent(m.md.render(content))
	case protocol.KindThinking:
		return indent(thinkingStyle.Render(clipLines(content, 6)))
	case protocol.KindAction:
		return indent(dimStyle.Render(content))
	case protocol.KindObservation:
		return indent(dimStyle.Render(clipLines(content, 8)))
	case protocol.KindErrorObservation, protocol.KindError:
		return indent(errorStyle.Render(clipLines(content, 8)))
	default:
		return indent(content)
	}
}

// clockFromTimestamp extracts HH:MM:SS from a server timestamp string.
// Timestamps are opaque strings on the wire; displaying a slice of one
// avoids guessing at its zone.
func clockFromTimestamp(ts string) string {
	if len(ts) >= 19 && ts[10] == 'T' {
		return ts[11:19]
	}
	return ""
}

// indent prefixes every line with two spaces.
func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = "  " + line
		}
	}
	return strings.Join(lines, "\n")
}

// clipLines keeps the first max lines and notes how many were dropped.
func clipLines(s string, max int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	kept := strings.Join(lines[:max], "\n")
	return kept + "\n" + fmt.Sprintf("… (%d more lines)", len(lines)-max)
}

// truncateToWidth cuts s to the given display width.
func truncateToWidth(s string, w int) string {
	if w <= 0 {
		return ""
	}
	return runewidth.Truncate(s, w, "…")
}
