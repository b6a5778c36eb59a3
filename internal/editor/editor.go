// Package editor wraps the editor command-line interface (code, cursor, or a
// compatible fork) for listing and installing extensions. It is a thin
// process wrapper; all policy lives with the callers.
package editor

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/blackwell-systems/vsixmirror/internal/marketplace"
)

// DefaultCLI is tried first when no CLI name is configured; cursor is the
// fallback for machines without a plain VS Code install.
const DefaultCLI = "code"

const fallbackCLI = "cursor"

// Installed is one installed extension as reported by the editor.
type Installed struct {
	ID      string // lower-cased publisher.name
	Version string
}

// CLI invokes one editor binary.
type CLI struct {
	name string
}

// New creates a CLI wrapper for the named editor binary. An empty name
// selects DefaultCLI with automatic fallback to cursor when code is absent.
func New(name string) *CLI {
	return &CLI{name: name}
}

// ListInstalled returns the installed extensions with their versions via
// `--list-extensions --show-versions`.
func (c *CLI) ListInstalled() ([]Installed, error) {
	out, err := c.run("--list-extensions", "--show-versions")
	if err != nil {
		return nil, err
	}
	return ParseExtensionList(string(out)), nil
}

// Install installs a VSIX file via `--install-extension`.
func (c *CLI) Install(vsixPath string, force bool) error {
	args := []string{"--install-extension", vsixPath}
	if force {
		args = append(args, "--force")
	}
	if _, err := c.run(args...); err != nil {
		return fmt.Errorf("install %s: %w", vsixPath, err)
	}
	return nil
}

// run executes the editor CLI, falling back from code to cursor when the
// default binary is not on PATH.
func (c *CLI) run(args ...string) ([]byte, error) {
	name := c.name
	if name == "" {
		name = DefaultCLI
	}

	out, err := exec.Command(name, args...).Output()
	if err != nil && c.name == "" && errors.Is(err, exec.ErrNotFound) {
		name = fallbackCLI
		out, err = exec.Command(name, args...).Output()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s %s failed: %w (stderr: %s)", name, args[0], err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("%s %s failed: %w", name, args[0], err)
	}
	return out, nil
}

// ParseExtensionList parses `--list-extensions --show-versions` output:
// one `publisher.name@version` per line. Lines without an @ are skipped.
func ParseExtensionList(output string) []Installed {
	var installed []Installed
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSpace(line)
		id, version, ok := strings.Cut(line, "@")
		if !ok || id == "" || version == "" {
			continue
		}
		installed = append(installed, Installed{
			ID:      marketplace.NormalizeID(id),
			Version: version,
		})
	}
	return installed
}
