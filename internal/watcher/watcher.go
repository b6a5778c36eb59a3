// Package watcher watches a market directory and installs VSIX artifacts
// into the local editor as they appear, so a machine tracking a mirror picks
// up synced updates without a manual install step.
package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/vsixmirror/internal/editor"
	"github.com/blackwell-systems/vsixmirror/internal/vsix"
)

// settleDelay is how long a file must stay quiet after its last write event
// before it is considered fully synced. Artifacts arrive via atomic rename,
// but a short debounce also absorbs editors copying files in manually.
const settleDelay = 2 * time.Second

// Installer installs a VSIX file. *editor.CLI satisfies it.
type Installer interface {
	Install(vsixPath string, force bool) error
}

// Watcher installs newly arrived artifacts from one market directory.
// Update-only: extensions not already installed in the editor are left
// alone, matching the install command's default.
type Watcher struct {
	dir string
	cli Installer
	log *slog.Logger

	mu        sync.Mutex
	installed map[string]string // extension id -> installed version
	timers    map[string]*time.Timer

	fs     *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Watcher over dir. installed seeds the known editor state,
// typically from editor.CLI.ListInstalled. logger nil selects slog.Default.
func New(dir string, cli Installer, installed []editor.Installed, logger *slog.Logger) (*Watcher, error) {
	if cli == nil {
		return nil, fmt.Errorf("installer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	state := make(map[string]string, len(installed))
	for _, ext := range installed {
		state[ext.ID] = ext.Version
	}

	return &Watcher{
		dir:       dir,
		cli:       cli,
		log:       logger,
		installed: state,
		timers:    make(map[string]*time.Timer),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start begins watching the market directory.
func (w *Watcher) Start() error {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fs.Add(w.dir); err != nil {
		fs.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.fs = fs

	w.wg.Add(1)
	go w.run()
	return nil
}

// run consumes filesystem events until Stop is called.
func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, vsix.Ext) {
				continue
			}
			w.schedule(name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("filesystem watch error", "dir", w.dir, "error", err)
		case <-w.stopCh:
			return
		}
	}
}

// schedule (re)arms the settle timer for one artifact; the install runs once
// the file has been quiet for settleDelay.
func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[name]; ok {
		timer.Stop()
	}
	w.timers[name] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.timers, name)
		w.mu.Unlock()
		w.ProcessFile(name)
	})
}

// Stop halts the watcher and waits for the event loop to drain. Pending
// settle timers are cancelled.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	if w.fs != nil {
		w.fs.Close()
	}
	w.wg.Wait()

	w.mu.Lock()
	for name, timer := range w.timers {
		timer.Stop()
		delete(w.timers, name)
	}
	w.mu.Unlock()
	return nil
}

// ProcessFile decides whether one artifact should be installed and runs the
// install. Returns true when an install happened. Exported for the event
// timers and for direct use by tests.
func (w *Watcher) ProcessFile(name string) bool {
	extID, version, ok := vsix.ParseFilename(name)
	if !ok {
		w.log.Warn("ignoring unrecognized artifact name", "file", name)
		return false
	}

	w.mu.Lock()
	current, known := w.installed[extID]
	w.mu.Unlock()

	if !known {
		w.log.Info("skipping extension not installed in editor", "extension", extID)
		return false
	}
	if !newerThan(version, current) {
		return false
	}

	if err := w.cli.Install(filepath.Join(w.dir, name), false); err != nil {
		w.log.Warn("install failed", "extension", extID, "file", name, "error", err)
		return false
	}

	w.mu.Lock()
	w.installed[extID] = version
	w.mu.Unlock()

	w.log.Info("installed update", "extension", extID, "version", version)
	return true
}

// newerThan reports whether version a is strictly newer than b. Falls back
// to string comparison when either side is not semver.
func newerThan(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.GreaterThan(vb)
	}
	return a > b
}
