package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/vsixmirror/internal/gallery"
	"github.com/blackwell-systems/vsixmirror/internal/output"
)

var (
	statusRuns int

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show mirrored extensions and recent sync runs",
		Example: `  # Current gallery contents and the last 5 sync runs
  vsixmirror status

  # More history
  vsixmirror status --runs 20`,
		RunE: runStatus,
	}
)

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "number of recent sync runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	for i := range cfg.Markets {
		m := &cfg.Markets[i]
		entries := gallery.NewStore(m.Directory).Load()
		fmt.Print(output.RenderGalleryTable(m.Name, entries))
		fmt.Println()
	}

	hist, err := openHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	runs, err := hist.RecentRuns(statusRuns)
	if err != nil {
		return fmt.Errorf("failed to read sync history: %w", err)
	}
	fmt.Print(output.RenderRunTable(runs))

	if len(runs) > 0 {
		events, err := hist.EventsForRun(runs[0].ID)
		if err != nil {
			return fmt.Errorf("failed to read sync events: %w", err)
		}
		fmt.Printf("\nLast run (#%d):\n", runs[0].ID)
		fmt.Print(output.RenderEventTable(events))
	}
	return nil
}
