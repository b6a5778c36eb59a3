// Package app wires the vsixmirror subcommands. Commands stay thin: policy
// lives in the internal packages, app does flag parsing and plumbing.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/vsixmirror/internal/config"
	"github.com/blackwell-systems/vsixmirror/internal/history"
)

var (
	configPath string
	dbPath     string

	// RootCmd is the root command for vsixmirror.
	RootCmd = &cobra.Command{
		Use:   "vsixmirror",
		Short: "Private VS Code extension marketplace mirror",
		Long: `vsixmirror maintains a local mirror of marketplace extensions for one or
more editor clients with different engine versions, and serves the mirror
over the marketplace query protocol so unmodified clients can use it.

Each configured market pairs a target engine version with a storage
directory. A sync pass resolves, per market, the newest extension release
whose declared engine range matches the market's engine, downloads the VSIX
artifacts, and removes artifacts no longer desired.

Quick Start:
  1. Write a markets.yaml (markets, engines, directories)
  2. vsixmirror sync
  3. vsixmirror serve --market modern
  4. Point the client's extension gallery URL at this host

Examples:
  # Sync all configured markets
  vsixmirror sync

  # Serve one market's mirror on the default port
  vsixmirror serve --market modern

  # Install synced artifacts into the local editor
  vsixmirror install --market modern

  # Keep the editor current as new artifacts arrive
  vsixmirror watch --market modern --daemon

  # Inspect recent sync runs
  vsixmirror status`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "markets.yaml", "markets configuration file")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "history database path (default: ~/.vsixmirror/history.db)")

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(syncCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(installCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(watchCmd)
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

// loadConfig loads and validates the markets file. Configuration errors are
// the only fatal errors of the tool.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// stateDir returns the vsixmirror state directory, creating it if needed.
func stateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	dir := filepath.Join(home, ".vsixmirror")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// getDBPath returns the history database path, using the flag or default.
func getDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	dir, err := stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// openHistory opens the history store and ensures the schema exists.
func openHistory() (*history.Store, error) {
	path, err := getDBPath()
	if err != nil {
		return nil, err
	}
	st, err := history.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return st, nil
}

// newLogger builds the structured logger used on the sync and serve paths.
// Interactive command feedback goes to stdout separately.
func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
