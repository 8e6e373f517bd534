package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/app"
	"github.com/bazelment/quill/chat"
	"github.com/bazelment/quill/config"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the chat TUI (the default when no command is given)",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&sessionFlag, "session", "", "Session ID to open (default: most recent)")
	chatCmd.Flags().BoolVar(&plainFlag, "plain", false, "Line-mode REPL instead of the full-screen TUI")

	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	if !client.LoggedIn() {
		return fmt.Errorf("not logged in; run `quill login` first")
	}

	ctx, cancel := signalContext()
	defer cancel()

	sessionID, err := resolveSession(ctx, client)
	if err != nil {
		return err
	}

	thread := chat.NewThread()
	ctrl := chat.NewController(client, thread,
		chat.WithRevealInterval(time.Duration(cfg.Reveal.Interval)*time.Millisecond),
		chat.WithRevealStep(cfg.Reveal.Step),
	)
	defer ctrl.Close()

	if err := ctrl.Switch(ctx, sessionID); err != nil {
		return fmt.Errorf("opening session %s: %w", sessionID, err)
	}

	if plainFlag {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		err = app.RunPlain(ctx, client, ctrl, filepath.Join(dir, "history"))
	} else {
		err = app.Run(ctx, client, ctrl)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// resolveSession picks the session to open: the --session flag if
// given, otherwise the most recent one, otherwise a fresh session.
func resolveSession(ctx context.Context, client *api.Client) (string, error) {
	if sessionFlag != "" {
		return sessionFlag, nil
	}
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return "", fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) > 0 {
		// The server returns newest first.
		return sessions[0].ID, nil
	}
	created, err := client.CreateSession(ctx, "")
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return created.ID, nil
}
