package app

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/chat"
)

// Run starts the full-screen TUI and blocks until the user quits or
// ctx is cancelled.
func Run(ctx context.Context, client *api.Client, ctrl *chat.Controller) error {
	model := NewModel(ctx, client, ctrl)
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen(), tea.WithMouseCellMotion())

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
