// Package config loads the markets configuration file for vsixmirror.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Market describes one logical mirror: a client population identified by its
// engine version, backed by one storage directory.
type Market struct {
	Name      string `yaml:"name"`
	Engine    string `yaml:"engine"`
	Directory string `yaml:"directory"`

	engine *semver.Version
}

// EngineVersion returns the parsed target engine version. Valid after Load.
func (m *Market) EngineVersion() *semver.Version {
	return m.engine
}

// Upstream configures the marketplace the mirror syncs from.
type Upstream struct {
	// URL is the extension-query endpoint. Empty selects the public
	// Visual Studio Marketplace.
	URL string `yaml:"url"`
	// TimeoutSeconds bounds each upstream call. Zero selects the default.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the per-call upstream timeout as a duration.
func (u Upstream) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// Config is the static configuration for one vsixmirror run. Immutable after
// Load; the reconciler and server receive it by value and never modify it.
type Config struct {
	Upstream Upstream `yaml:"upstream"`
	Markets  []Market `yaml:"markets"`
	// Extensions is the explicit list of ids to mirror. When empty, the
	// list is derived from the installed extensions via the editor CLI.
	Extensions []string `yaml:"extensions"`
	// CLI is the editor binary used to derive the extension list and by
	// the install/watch commands. Empty means code with cursor fallback.
	CLI string `yaml:"cli"`
}

// Market returns the named market, or nil if not configured.
func (c *Config) Market(name string) *Market {
	for i := range c.Markets {
		if c.Markets[i].Name == name {
			return &c.Markets[i]
		}
	}
	return nil
}

// MarketNames returns the configured market names in declaration order.
func (c *Config) MarketNames() []string {
	names := make([]string, len(c.Markets))
	for i, m := range c.Markets {
		names[i] = m.Name
	}
	return names
}

// Load reads and validates a markets configuration file. Configuration
// errors are the only fatal errors in the system, so validation is strict:
// every market needs a name, a parseable engine version, and a directory,
// and market names must be unique.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if len(cfg.Markets) == 0 {
		return nil, fmt.Errorf("config %s: no markets configured", path)
	}

	seen := make(map[string]bool)
	for i := range cfg.Markets {
		m := &cfg.Markets[i]
		if m.Name == "" {
			return nil, fmt.Errorf("config %s: market %d has no name", path, i)
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("config %s: duplicate market %q", path, m.Name)
		}
		seen[m.Name] = true

		if m.Directory == "" {
			return nil, fmt.Errorf("config %s: market %q has no directory", path, m.Name)
		}
		m.Directory = filepath.Clean(m.Directory)

		engine, err := semver.NewVersion(m.Engine)
		if err != nil {
			return nil, fmt.Errorf("config %s: market %q engine %q: %w", path, m.Name, m.Engine, err)
		}
		m.engine = engine
	}

	return &cfg, nil
}
