package app

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"

	"github.com/bazelment/quill/chat"
	"github.com/bazelment/quill/protocol"
)

func TestClockFromTimestamp(t *testing.T) {
	assert.Equal(t, "09:15:42", clockFromTimestamp("2025-03-04T09:15:42.123456"))
	assert.Equal(t, "09:15:42", clockFromTimestamp("2025-03-04T09:15:42"))
	assert.Equal(t, "", clockFromTimestamp("2025-03-04"))
	assert.Equal(t, "", clockFromTimestamp(""))
	// Not a timestamp shape at all; better blank than garbage.
	assert.Equal(t, "", clockFromTimestamp("yesterday afternoon"))
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "  one\n\n  three", indent("one\n\nthree"))
	assert.Equal(t, "", indent(""))
}

func TestClipLines(t *testing.T) {
	short := "a\nb\nc"
	assert.Equal(t, short, clipLines(short, 3))
	assert.Equal(t, short, clipLines(short, 5))

	long := "1\n2\n3\n4\n5"
	clipped := clipLines(long, 2)
	assert.Equal(t, "1\n2\n… (3 more lines)", clipped)
}

func TestTruncateToWidth(t *testing.T) {
	assert.Equal(t, "hello", truncateToWidth("hello", 10))
	assert.Equal(t, "", truncateToWidth("hello", 0))

	cut := truncateToWidth("hello world", 8)
	assert.True(t, strings.HasSuffix(cut, "…"))
	assert.LessOrEqual(t, runewidth.StringWidth(cut), 8)

	// CJK characters are two columns wide; width counts columns.
	wide := truncateToWidth("你好世界", 5)
	assert.LessOrEqual(t, runewidth.StringWidth(wide), 5)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0c2f3a4b", shortID("0c2f3a4b-9d1e-4f6a-8b2c-1d3e5f7a9b0c"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestRenderHeaderMarksOptimistic(t *testing.T) {
	m := Model{md: newMarkdownRenderer(60)}

	pending := chat.Message{
		ID:      chat.OptimisticID,
		Role:    protocol.RoleUser,
		Kind:    protocol.KindUserInput,
		Content: "hi",
	}
	assert.Contains(t, m.renderHeader(pending), "(sending…)")

	confirmed := chat.Message{
		ID:        4,
		Role:      protocol.RoleUser,
		Kind:      protocol.KindUserInput,
		Content:   "hi",
		CreatedAt: "2025-03-04T09:15:42",
	}
	header := m.renderHeader(confirmed)
	assert.Contains(t, header, "09:15:42")
	assert.NotContains(t, header, "(sending…)")
}

func TestRenderBodyShowsStreamCursor(t *testing.T) {
	m := Model{md: newMarkdownRenderer(60)}

	streaming := chat.Message{
		ID:        9,
		Role:      protocol.RoleAssistant,
		Kind:      protocol.KindText,
		Content:   "partial rep",
		Streaming: true,
	}
	body := m.renderBody(streaming)
	assert.Contains(t, body, "partial rep▌")

	done := streaming
	done.Streaming = false
	done.Content = "full reply"
	assert.NotContains(t, m.renderBody(done), "▌")
}

func TestRenderBodyClipsToolOutput(t *testing.T) {
	m := Model{md: newMarkdownRenderer(60)}

	lines := make([]string, 30)
	for i := range lines {
		lines[i] = "output line"
	}
	obs := chat.Message{
		ID:      3,
		Role:    protocol.RoleAssistant,
		Kind:    protocol.KindObservation,
		Content: strings.Join(lines, "\n"),
	}
	body := m.renderBody(obs)
	assert.Contains(t, body, "(22 more lines)")
}
