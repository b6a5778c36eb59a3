package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/vsixmirror/internal/editor"
	"github.com/blackwell-systems/vsixmirror/internal/vsix"
)

var (
	installMarket string
	installCLI    string
	installForce  bool
	installDryRun bool

	installCmd = &cobra.Command{
		Use:   "install",
		Short: "Install mirrored VSIX artifacts into the local editor",
		Long: `Compare the VSIX artifacts in a market directory against the extensions
installed in the local editor and install what is needed.

By default only updates are installed: an artifact for an extension that is
not already installed is skipped. Use --force to install everything,
including new extensions.`,
		Example: `  # Update installed extensions from the modern market
  vsixmirror install --market modern

  # Install everything, including new extensions
  vsixmirror install --market modern --force

  # Preview without changing anything
  vsixmirror install --market modern --dry-run`,
		RunE: runInstall,
	}
)

func init() {
	installCmd.Flags().StringVar(&installMarket, "market", "", "market directory to install from (default: first configured market)")
	installCmd.Flags().StringVar(&installCLI, "cli", "", "editor CLI to use (default: config file, then code with cursor fallback)")
	installCmd.Flags().BoolVar(&installForce, "force", false, "install new extensions as well as updates")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "show what would be installed without making changes")
}

// plannedInstall is one artifact selected for installation.
type plannedInstall struct {
	extID   string
	version string
	path    string
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := installMarket
	if name == "" {
		name = cfg.Markets[0].Name
	}
	market := cfg.Market(name)
	if market == nil {
		return fmt.Errorf("unknown market %q (configured: %v)", name, cfg.MarketNames())
	}

	cliName := installCLI
	if cliName == "" {
		cliName = cfg.CLI
	}
	cli := editor.New(cliName)

	installed, err := cli.ListInstalled()
	if err != nil {
		return fmt.Errorf("failed to list installed extensions: %w", err)
	}
	current := make(map[string]string, len(installed))
	for _, ext := range installed {
		current[ext.ID] = ext.Version
	}

	planned, err := planInstalls(market.Directory, current, installForce)
	if err != nil {
		return err
	}

	if len(planned) == 0 {
		fmt.Println("No installs needed; all artifacts are already installed at the same or newer versions.")
		return nil
	}

	fmt.Printf("Planned installs: %d\n", len(planned))
	for _, p := range planned {
		fmt.Printf("  %s@%s  <- %s\n", p.extID, p.version, p.path)
	}
	if installDryRun {
		return nil
	}

	for _, p := range planned {
		if err := cli.Install(p.path, installForce); err != nil {
			return fmt.Errorf("install failed for %s: %w", p.path, err)
		}
	}

	fmt.Println("Install complete.")
	return nil
}

// planInstalls walks a market directory and selects the artifacts to
// install. Default policy is update-only; force selects everything.
func planInstalls(dir string, current map[string]string, force bool) ([]plannedInstall, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read market directory %s: %w", dir, err)
	}

	var planned []plannedInstall
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), vsix.Ext) {
			continue
		}
		extID, version, ok := vsix.ParseFilename(entry.Name())
		if !ok {
			fmt.Printf("[SKIP] Unrecognized VSIX filename: %s\n", entry.Name())
			continue
		}

		installedVer, isInstalled := current[extID]
		switch {
		case !isInstalled && !force:
			fmt.Printf("[SKIP] Not installed (use --force to install new extensions): %s\n", extID)
			continue
		case isInstalled && !force && compareVersions(version, installedVer) <= 0:
			fmt.Printf("[SKIP] Already at same or newer version: %s@%s\n", extID, installedVer)
			continue
		}

		planned = append(planned, plannedInstall{
			extID:   extID,
			version: version,
			path:    filepath.Join(dir, entry.Name()),
		})
	}

	sort.Slice(planned, func(i, j int) bool { return planned[i].extID < planned[j].extID })
	return planned, nil
}

// compareVersions returns 1 if a > b, -1 if a < b, 0 if equal. Falls back to
// string comparison when either side is not semver.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}
