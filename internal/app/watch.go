package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/vsixmirror/internal/editor"
	"github.com/blackwell-systems/vsixmirror/internal/watcher"
)

var (
	watchMarket      string
	watchCLI         string
	watchDaemon      bool
	watchDaemonChild bool
	watchStop        bool

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Auto-install artifacts as they arrive in a market directory",
		Long: `Watch a market directory and install VSIX artifacts into the local editor
as sync passes drop them. Update-only: extensions not already installed in
the editor are ignored, like the install command's default.

With --daemon the watcher runs as a detached background process; --stop
terminates it.`,
		Example: `  # Watch in the foreground
  vsixmirror watch --market modern

  # Run detached
  vsixmirror watch --market modern --daemon

  # Stop the background watcher
  vsixmirror watch --stop`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().StringVar(&watchMarket, "market", "", "market directory to watch (default: first configured market)")
	watchCmd.Flags().StringVar(&watchCLI, "cli", "", "editor CLI to use (default: config file, then code with cursor fallback)")
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run detached in the background")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal: run as the daemon child process")
	watchCmd.Flags().MarkHidden("daemon-child")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop the background watcher")
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir, err := stateDir()
	if err != nil {
		return err
	}
	pidFile := filepath.Join(dir, "watch.pid")
	logFile := filepath.Join(dir, "watch.log")

	if watchStop {
		if err := watcher.StopDaemon(pidFile); err != nil {
			return err
		}
		fmt.Println("Watcher stopped.")
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := watchMarket
	if name == "" {
		name = cfg.Markets[0].Name
	}
	market := cfg.Market(name)
	if market == nil {
		return fmt.Errorf("unknown market %q (configured: %v)", name, cfg.MarketNames())
	}
	if err := os.MkdirAll(market.Directory, 0o755); err != nil {
		return fmt.Errorf("failed to create market directory: %w", err)
	}

	if watchDaemon {
		childArgs := []string{
			"watch", "--daemon-child",
			"--config", configPath,
			"--market", market.Name,
		}
		if watchCLI != "" {
			childArgs = append(childArgs, "--cli", watchCLI)
		}
		if err := watcher.StartDaemon(pidFile, logFile, childArgs...); err != nil {
			return err
		}
		fmt.Printf("Watcher started in the background (market %s, log %s).\n", market.Name, logFile)
		return nil
	}

	cliName := watchCLI
	if cliName == "" {
		cliName = cfg.CLI
	}
	cli := editor.New(cliName)

	installed, err := cli.ListInstalled()
	if err != nil {
		return fmt.Errorf("failed to list installed extensions: %w", err)
	}

	w, err := watcher.New(market.Directory, cli, installed, newLogger())
	if err != nil {
		return err
	}

	if !watchDaemonChild {
		fmt.Printf("Watching %s (market %s); Ctrl-C to stop.\n", market.Directory, market.Name)
		// Foreground runs do not own the PID file.
		return w.RunUntilSignalled("")
	}
	return w.RunUntilSignalled(pidFile)
}
