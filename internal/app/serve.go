package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/vsixmirror/internal/gallery"
	"github.com/blackwell-systems/vsixmirror/internal/server"
)

var (
	serveAddr   string
	serveMarket string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve one market's mirror over the marketplace query protocol",
		Long: `Run the marketplace query server for a single market. The server answers
extension queries from the market's gallery file with asset URLs rewritten
to this host, and serves the VSIX artifacts themselves under ` + server.FilesPrefix + `/.

The gallery is read fresh on every request, so a concurrent sync pass is
picked up without a restart.`,
		Example: `  # Serve the default (first configured) market on :6789
  vsixmirror serve

  # Serve a specific market on a specific address
  vsixmirror serve --market legacy --addr :7000`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":6789", "listen address")
	serveCmd.Flags().StringVar(&serveMarket, "market", "", "market to serve (default: first configured market)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := serveMarket
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

	fmt.Printf("Serving market %s (engine %s) from %s on %s\n",
		market.Name, market.Engine, market.Directory, serveAddr)

	srv := server.New(gallery.NewStore(market.Directory), newLogger())
	return srv.ListenAndServe(serveAddr)
}
