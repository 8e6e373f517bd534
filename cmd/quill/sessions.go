package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your sessions, newest first",
	RunE:  runSessionsList,
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create a session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionsNew,
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsRm,
}

var sessionsCompactCmd = &cobra.Command{
	Use:   "compact <session-id>",
	Short: "Summarize old messages to shrink the session context",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsCompact,
}

var sessionsJSON bool

func init() {
	sessionsListCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output sessions as JSON")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
	sessionsCmd.AddCommand(sessionsCompactCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	client, ctx, cleanup, err := commandClient()
	if err != nil {
		return err
	}
	defer cleanup()

	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return err
	}

	if sessionsJSON {
		data, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions yet. Start one with `quill` or `quill sessions new`.")
		return nil
	}
	fmt.Printf("%-36s  %-16s  %s\n", "ID", "CREATED", "TITLE")
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%-36s  %-16s  %s\n", s.ID, when(s.CreatedAt), title)
	}
	return nil
}

func runSessionsNew(cmd *cobra.Command, args []string) error {
	client, ctx, cleanup, err := commandClient()
	if err != nil {
		return err
	}
	defer cleanup()

	title := ""
	if len(args) > 0 {
		title = args[0]
	}
	created, err := client.CreateSession(ctx, title)
	if err != nil {
		return err
	}
	fmt.Printf("Created session %s\n", created.ID)
	return nil
}

func runSessionsRm(cmd *cobra.Command, args []string) error {
	client, ctx, cleanup, err := commandClient()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := client.DeleteSession(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s\n", args[0])
	return nil
}

func runSessionsCompact(cmd *cobra.Command, args []string) error {
	client, ctx, cleanup, err := commandClient()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := client.CompactSession(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Compacted session %s\n", args[0])
	return nil
}

// when renders an ISO timestamp for column output.
func when(ts string) string {
	if len(ts) >= 16 {
		return strings.Replace(ts[:16], "T", " ", 1)
	}
	return ts
}
