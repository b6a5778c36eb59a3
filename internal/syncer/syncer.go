// Package syncer reconciles the on-disk mirror against upstream: for every
// configured market it resolves the release to mirror per extension,
// downloads missing artifacts, updates the gallery, and finally removes
// artifacts no longer desired by any resolution.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/blackwell-systems/vsixmirror/internal/config"
	"github.com/blackwell-systems/vsixmirror/internal/gallery"
	"github.com/blackwell-systems/vsixmirror/internal/history"
	"github.com/blackwell-systems/vsixmirror/internal/marketplace"
	"github.com/blackwell-systems/vsixmirror/internal/resolver"
	"github.com/blackwell-systems/vsixmirror/internal/vsix"
)

// Failure records one non-fatal per-extension problem during a run.
type Failure struct {
	Extension string
	Market    string // empty when the failure is market-independent
	Kind      string // a history.Kind* value
	Err       error
}

// Report summarizes one reconcile pass.
type Report struct {
	Extensions int
	Downloads  int
	Deletions  int
	Failures   []Failure
}

// Reconciler drives the sync path.
type Reconciler struct {
	client  *marketplace.Client
	cfg     *config.Config
	history *history.Store // nil disables run recording
	log     *slog.Logger
}

// New creates a Reconciler. hist may be nil; logger nil selects slog.Default.
func New(client *marketplace.Client, cfg *config.Config, hist *history.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{client: client, cfg: cfg, history: hist, log: logger}
}

// Reconcile runs one full pass over the given extension ids for every
// configured market. Per-extension failures are collected in the report and
// logged, never returned as errors: one broken extension must not abort the
// batch. The returned error covers environment problems only (unwritable
// market directories).
//
// All downloads across all markets complete before any deletion starts, so
// a resolution failure for one extension can never trigger removal of
// another extension's still-valid artifact.
func (r *Reconciler) Reconcile(ctx context.Context, extIDs []string) (*Report, error) {
	report := &Report{Extensions: len(extIDs)}

	stores := make(map[string]*gallery.Store, len(r.cfg.Markets))
	desired := make(map[string]map[string]bool, len(r.cfg.Markets))
	for i := range r.cfg.Markets {
		m := &r.cfg.Markets[i]
		if err := os.MkdirAll(m.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("create market directory %s: %w", m.Directory, err)
		}
		stores[m.Name] = gallery.NewStore(m.Directory)
		desired[m.Name] = make(map[string]bool)
	}

	runID := r.beginRun()

	// Download phase.
	for _, extID := range extIDs {
		extID = marketplace.NormalizeID(extID)
		r.syncExtension(ctx, runID, extID, stores, desired, report)
	}

	// Cleanup phase: each market keeps exactly its desired file set.
	for i := range r.cfg.Markets {
		m := &r.cfg.Markets[i]
		r.cleanupMarket(runID, m, stores[m.Name], desired[m.Name], report)
	}

	r.finishRun(runID, report)
	return report, nil
}

// syncExtension fetches one extension's metadata and mirrors it into every
// market whose engine it can satisfy.
func (r *Reconciler) syncExtension(ctx context.Context, runID int64, extID string,
	stores map[string]*gallery.Store, desired map[string]map[string]bool, report *Report) {

	ext, err := r.client.FetchMetadata(ctx, extID)
	if err != nil {
		r.fail(runID, report, Failure{Extension: extID, Kind: history.KindNotFound, Err: err})
		return
	}

	for i := range r.cfg.Markets {
		m := &r.cfg.Markets[i]

		sel, err := resolver.Resolve(ext, m.EngineVersion())
		if err != nil {
			kind := history.KindNoCompatible
			if errors.Is(err, resolver.ErrUnresolvedArtifact) {
				kind = history.KindNoArtifact
			}
			r.fail(runID, report, Failure{Extension: extID, Market: m.Name, Kind: kind, Err: err})
			continue
		}

		filename := vsix.Filename(extID, sel.Version)
		desired[m.Name][filename] = true

		destPath := filepath.Join(m.Directory, filename)
		_, statErr := os.Stat(destPath)
		fresh := os.IsNotExist(statErr)

		if err := r.client.DownloadVSIX(ctx, sel.URL, destPath); err != nil {
			r.fail(runID, report, Failure{Extension: extID, Market: m.Name, Kind: history.KindDownloadFailed, Err: err})
			continue
		}

		// Persist the gallery entry immediately so a crash later in the
		// batch loses at most the in-flight extension.
		entry := gallery.Entry{
			ID:       extID,
			Version:  sel.Version,
			Metadata: ext.Raw,
			VSIXPath: filename,
		}
		if err := stores[m.Name].Put(entry); err != nil {
			r.fail(runID, report, Failure{Extension: extID, Market: m.Name, Kind: history.KindDownloadFailed,
				Err: fmt.Errorf("update gallery: %w", err)})
			continue
		}

		if fresh {
			report.Downloads++
			r.event(runID, extID, m.Name, history.KindDownloaded, sel.Version)
			r.log.Info("mirrored extension",
				"extension", extID, "market", m.Name, "version", sel.Version)
		} else {
			r.event(runID, extID, m.Name, history.KindUpToDate, sel.Version)
		}
	}
}

// cleanupMarket deletes artifacts outside the desired set and drops gallery
// entries that no longer point at a desired, present file.
func (r *Reconciler) cleanupMarket(runID int64, m *config.Market, store *gallery.Store,
	keep map[string]bool, report *Report) {

	matches, err := filepath.Glob(filepath.Join(m.Directory, "*"+vsix.Ext))
	if err != nil {
		// Only malformed patterns error here; the pattern is fixed.
		r.log.Warn("market cleanup scan failed", "market", m.Name, "error", err)
		return
	}

	for _, path := range matches {
		name := filepath.Base(path)
		if keep[name] {
			continue
		}
		if err := os.Remove(path); err != nil {
			r.log.Warn("failed to remove outdated artifact",
				"market", m.Name, "file", name, "error", err)
			continue
		}
		report.Deletions++
		r.event(runID, "", m.Name, history.KindDeleted, name)
		r.log.Info("removed outdated artifact", "market", m.Name, "file", name)
	}

	// Gallery invariant: every entry points at a desired file that exists.
	entries := store.Load()
	var stale []string
	for id, entry := range entries {
		if !keep[entry.VSIXPath] {
			stale = append(stale, id)
			continue
		}
		if _, err := os.Stat(filepath.Join(m.Directory, entry.VSIXPath)); err != nil {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := store.Delete(stale...); err != nil {
			r.log.Warn("failed to prune gallery entries", "market", m.Name, "error", err)
		}
	}
}

func (r *Reconciler) fail(runID int64, report *Report, f Failure) {
	report.Failures = append(report.Failures, f)
	attrs := []any{"extension", f.Extension, "kind", f.Kind, "error", f.Err}
	if f.Market != "" {
		m := r.cfg.Market(f.Market)
		attrs = append(attrs, "market", f.Market, "engine", m.Engine)
	}
	r.log.Warn("extension skipped", attrs...)
	r.event(runID, f.Extension, f.Market, f.Kind, f.Err.Error())
}

// History recording is best-effort: a broken history store must never break
// a sync run.

func (r *Reconciler) beginRun() int64 {
	if r.history == nil {
		return 0
	}
	runID, err := r.history.BeginRun(strings.Join(r.cfg.MarketNames(), ","))
	if err != nil {
		r.log.Warn("failed to record sync run", "error", err)
		return 0
	}
	return runID
}

func (r *Reconciler) event(runID int64, extension, market, kind, detail string) {
	if r.history == nil || runID == 0 {
		return
	}
	if err := r.history.AddEvent(runID, extension, market, kind, detail); err != nil {
		r.log.Warn("failed to record sync event", "error", err)
	}
}

func (r *Reconciler) finishRun(runID int64, report *Report) {
	if r.history == nil || runID == 0 {
		return
	}
	if err := r.history.FinishRun(runID, report.Extensions, report.Downloads, report.Deletions); err != nil {
		r.log.Warn("failed to finalize sync run", "error", err)
	}
}
