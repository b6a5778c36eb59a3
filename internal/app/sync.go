package app

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/vsixmirror/internal/config"
	"github.com/blackwell-systems/vsixmirror/internal/editor"
	"github.com/blackwell-systems/vsixmirror/internal/marketplace"
	"github.com/blackwell-systems/vsixmirror/internal/output"
	"github.com/blackwell-systems/vsixmirror/internal/syncer"
)

var (
	syncExtensions []string
	syncQuiet      bool

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Reconcile all market directories against upstream",
		Long: `Run one reconcile pass: for every configured market, resolve the newest
compatible release of each extension, download missing VSIX artifacts, and
remove artifacts no longer desired by any market.

The extension list comes from --extensions, then the config file's
extensions list, then the extensions installed in the local editor.

Per-extension failures (missing upstream, no compatible version, download
errors) are warnings; they never abort the batch and do not affect the exit
status.`,
		Example: `  # Sync using the extension list from markets.yaml or the editor
  vsixmirror sync

  # Sync a fixed set of extensions
  vsixmirror sync --extensions golang.go,ms-python.python`,
		RunE: runSync,
	}
)

func init() {
	syncCmd.Flags().StringSliceVar(&syncExtensions, "extensions", nil, "extension ids to sync (default: config file, then installed extensions)")
	syncCmd.Flags().BoolVar(&syncQuiet, "quiet", false, "suppress progress output")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	extIDs, err := extensionsToSync(cfg)
	if err != nil {
		return err
	}
	if len(extIDs) == 0 {
		fmt.Println("Nothing to sync: no extensions configured or installed.")
		return nil
	}

	hist, err := openHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	client := marketplace.NewClient(cfg.Upstream.URL, cfg.Upstream.Timeout())
	rec := syncer.New(client, cfg, hist, newLogger())

	if !syncQuiet {
		fmt.Printf("Syncing %d extensions across %d markets...\n", len(extIDs), len(cfg.Markets))
	}

	var spinner *output.Spinner
	if !syncQuiet && isatty.IsTerminal(os.Stdout.Fd()) {
		spinner = output.NewSpinner("Resolving and downloading")
		spinner.Start()
	}

	report, err := rec.Reconcile(context.Background(), extIDs)

	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}

	if !syncQuiet {
		fmt.Printf("Sync complete: %d extensions, %d downloaded, %d removed, %d warnings.\n",
			report.Extensions, report.Downloads, report.Deletions, len(report.Failures))
	}
	return nil
}

// extensionsToSync resolves the extension id list: explicit flag, then the
// config file, then the editor's installed extensions. The result is
// deduplicated, lower-cased, and sorted for deterministic runs.
func extensionsToSync(cfg *config.Config) ([]string, error) {
	ids := syncExtensions
	if len(ids) == 0 {
		ids = cfg.Extensions
	}
	if len(ids) == 0 {
		installed, err := editor.New(cfg.CLI).ListInstalled()
		if err != nil {
			return nil, fmt.Errorf("failed to list installed extensions: %w", err)
		}
		for _, ext := range installed {
			ids = append(ids, ext.ID)
		}
	}

	seen := make(map[string]bool, len(ids))
	var unique []string
	for _, id := range ids {
		id = marketplace.NormalizeID(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	sort.Strings(unique)
	return unique, nil
}
