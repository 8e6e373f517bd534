// Command quill is a terminal client for the agent chat backend.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bazelment/quill/api"
	"github.com/bazelment/quill/config"
)

// Global flags (persistent across all commands)
var (
	configPath  string
	sessionFlag string
	plainFlag   bool
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Chat with the agent backend from your terminal",
	Long: `Quill streams agent conversations into your terminal. Running it with
no arguments opens the chat TUI against your most recent session.

Configuration is read from ` + "`quill config path`" + ` and can be overridden
with QUILL_* environment variables (QUILL_API__BASE_URL, ...).`,
	RunE:          runChat,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/quill/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log at debug level")
	rootCmd.Flags().StringVar(&sessionFlag, "session", "", "Session ID to open (default: most recent)")
	rootCmd.Flags().BoolVar(&plainFlag, "plain", false, "Line-mode REPL instead of the full-screen TUI")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging routes the global logger. Interactive modes own the
// terminal, so logs go to the configured file or nowhere at all.
func setupLogging(cfg *config.Config, interactive bool) (func(), error) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level %q: %w", cfg.Log.Level, err)
	}
	if verboseFlag {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
		return func() { f.Close() }, nil
	}
	if interactive {
		log.Logger = zerolog.New(io.Discard)
		return func() {}, nil
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return func() {}, nil
}

// newClient builds the API client with the persisted credentials, if
// any, already loaded.
func newClient(cfg *config.Config) (*api.Client, error) {
	tokenPath, err := config.TokenPath()
	if err != nil {
		return nil, err
	}
	store := api.NewTokenStore(tokenPath)
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("reading stored credentials: %w", err)
	}
	client := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: time.Duration(cfg.API.Timeout) * time.Second,
	}, store)
	return client, nil
}

// commandClient wires up everything a one-shot subcommand needs: a
// logged-in client and a signal-cancelled context. The returned cleanup
// must be called when the command finishes.
func commandClient() (*api.Client, context.Context, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	closeLog, err := setupLogging(cfg, false)
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := newClient(cfg)
	if err != nil {
		closeLog()
		return nil, nil, nil, err
	}
	if !client.LoggedIn() {
		closeLog()
		return nil, nil, nil, fmt.Errorf("not logged in; run `quill login` first")
	}
	ctx, cancel := signalContext()
	cleanup := func() {
		cancel()
		closeLog()
	}
	return client, ctx, cleanup, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. A
// second signal forces exit.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		<-sigCh
		os.Exit(1)
	}()
	return ctx, cancel
}
