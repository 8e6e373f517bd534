package app

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer wraps glamour for terminal markdown rendering.
// Rendering is best-effort: on any failure the raw text is shown, so a
// malformed reply can never blank the transcript.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

func newMarkdownRenderer(width int) *markdownRenderer {
	m := &markdownRenderer{}
	m.setWidth(width)
	return m
}

func (m *markdownRenderer) setWidth(width int) {
	if width < 20 {
		width = 20
	}
	if m.renderer != nil && width == m.width {
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return
	}
	m.renderer = r
	m.width = width
}

func (m *markdownRenderer) render(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	// Glamour pads with blank lines top and bottom; the transcript
	// supplies its own spacing.
	return strings.Trim(out, "\n")
}
