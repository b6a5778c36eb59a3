package syncer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackwell-systems/vsixmirror/internal/config"
	"github.com/blackwell-systems/vsixmirror/internal/gallery"
	"github.com/blackwell-systems/vsixmirror/internal/history"
	"github.com/blackwell-systems/vsixmirror/internal/marketplace"
)

// fakeUpstream is an httptest marketplace serving a fixed catalog on
// /query and artifact bytes on /dl/. It counts download requests.
type fakeUpstream struct {
	srv       *httptest.Server
	catalog   map[string]marketplace.Extension
	downloads int
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{catalog: make(map[string]marketplace.Extension)}

	mux := http.NewServeMux()
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		var q marketplace.Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := marketplace.QueryResponse{Results: []marketplace.QueryResult{{}}}
		for _, fl := range q.Filters {
			for _, c := range fl.Criteria {
				if c.FilterType != marketplace.FilterTypeExtensionName {
					continue
				}
				if ext, ok := f.catalog[marketplace.NormalizeID(c.Value)]; ok {
					resp.Results[0].Extensions = append(resp.Results[0].Extensions, ext)
				}
			}
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/dl/", func(w http.ResponseWriter, r *http.Request) {
		f.downloads++
		w.Write([]byte("vsix:" + filepath.Base(r.URL.Path)))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// add registers an extension whose releases all carry explicit download
// URLs under the fake's /dl/ prefix. releases maps version -> engine range.
func (f *fakeUpstream) add(id string, releases map[string]string) {
	publisher, name, _ := splitID(id)
	ext := marketplace.Extension{
		ExtensionName: name,
		Publisher:     marketplace.Publisher{PublisherName: publisher},
	}

	for version, engineRange := range releases {
		ext.Versions = append(ext.Versions, marketplace.Version{
			Version:    version,
			Properties: []marketplace.Property{{Key: marketplace.PropertyEngine, Value: engineRange}},
			Files: []marketplace.Asset{{
				AssetType: marketplace.AssetTypeVSIXPackage,
				Source:    f.srv.URL + "/dl/" + id + "-" + version + ".vsix",
			}},
		})
	}
	f.catalog[id] = ext
}

func splitID(id string) (publisher, name string, ok bool) {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return id[:i], id[i+1:], true
		}
	}
	return "", id, false
}

func testConfig(t *testing.T, up *fakeUpstream) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfgYAML := `
upstream:
  url: ` + up.srv.URL + `/query
markets:
  - name: legacy
    engine: 1.89.0
    directory: ` + filepath.Join(root, "vsix-legacy") + `
  - name: modern
    engine: 1.93.0
    directory: ` + filepath.Join(root, "vsix-modern") + `
`
	path := filepath.Join(root, "markets.yaml")
	if err := os.WriteFile(path, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	return cfg
}

func newReconciler(cfg *config.Config, hist *history.Store) *Reconciler {
	client := marketplace.NewClient(cfg.Upstream.URL, time.Second)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, cfg, hist, logger)
}

func TestReconcile_MirrorsPerMarketEngine(t *testing.T) {
	up := newFakeUpstream(t)
	up.add("acme.tool", map[string]string{
		"2.0.0": ">=1.90.0",
		"1.5.0": ">=1.80.0 <1.90.0",
	})
	cfg := testConfig(t, up)

	report, err := newReconciler(cfg, nil).Reconcile(context.Background(), []string{"acme.tool"})
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if report.Downloads != 2 {
		t.Errorf("Downloads = %d; want 2 (one per market)", report.Downloads)
	}
	if len(report.Failures) != 0 {
		t.Errorf("Failures = %+v; want none", report.Failures)
	}

	// Engine 1.89.0 must land on 1.5.0, engine 1.93.0 on 2.0.0.
	assertFileExists(t, filepath.Join(cfg.Market("legacy").Directory, "acme.tool-1.5.0.vsix"))
	assertFileExists(t, filepath.Join(cfg.Market("modern").Directory, "acme.tool-2.0.0.vsix"))

	entries := gallery.NewStore(cfg.Market("modern").Directory).Load()
	entry, ok := entries["acme.tool"]
	if !ok {
		t.Fatal("modern gallery has no acme.tool entry")
	}
	if entry.Version != "2.0.0" || entry.VSIXPath != "acme.tool-2.0.0.vsix" {
		t.Errorf("modern entry = %+v; want version 2.0.0", entry)
	}
	if len(entry.Metadata) == 0 {
		t.Error("gallery entry carries no upstream metadata blob")
	}
}

// TestReconcile_Idempotent verifies that with unchanged upstream state the
// second pass downloads nothing and deletes nothing.
func TestReconcile_Idempotent(t *testing.T) {
	up := newFakeUpstream(t)
	up.add("acme.tool", map[string]string{"2.0.0": ">=1.80.0"})
	cfg := testConfig(t, up)
	rec := newReconciler(cfg, nil)

	if _, err := rec.Reconcile(context.Background(), []string{"acme.tool"}); err != nil {
		t.Fatalf("first Reconcile() failed: %v", err)
	}
	downloadsAfterFirst := up.downloads

	report, err := rec.Reconcile(context.Background(), []string{"acme.tool"})
	if err != nil {
		t.Fatalf("second Reconcile() failed: %v", err)
	}
	if report.Downloads != 0 || report.Deletions != 0 {
		t.Errorf("second pass: downloads=%d deletions=%d; want 0/0", report.Downloads, report.Deletions)
	}
	if up.downloads != downloadsAfterFirst {
		t.Errorf("second pass hit upstream %d more times; want 0", up.downloads-downloadsAfterFirst)
	}
}

// TestReconcile_CleanupRemovesOrphans verifies the cleanup pass: files
// outside the desired set are deleted, desired files are left untouched.
func TestReconcile_CleanupRemovesOrphans(t *testing.T) {
	up := newFakeUpstream(t)
	up.add("acme.tool", map[string]string{"2.0.0": ">=1.80.0"})
	cfg := testConfig(t, up)
	rec := newReconciler(cfg, nil)

	if _, err := rec.Reconcile(context.Background(), []string{"acme.tool"}); err != nil {
		t.Fatalf("seeding Reconcile() failed: %v", err)
	}

	legacyDir := cfg.Market("legacy").Directory
	orphan := filepath.Join(legacyDir, "acme.tool-0.9.0.vsix")
	if err := os.WriteFile(orphan, []byte("old"), 0o644); err != nil {
		t.Fatalf("writing orphan: %v", err)
	}
	kept := filepath.Join(legacyDir, "acme.tool-2.0.0.vsix")
	keptBefore, err := os.ReadFile(kept)
	if err != nil {
		t.Fatalf("reading kept file: %v", err)
	}

	report, err := rec.Reconcile(context.Background(), []string{"acme.tool"})
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if report.Deletions != 1 {
		t.Errorf("Deletions = %d; want 1", report.Deletions)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphan artifact still present after cleanup")
	}
	keptAfter, err := os.ReadFile(kept)
	if err != nil {
		t.Fatalf("kept artifact missing after cleanup: %v", err)
	}
	if string(keptAfter) != string(keptBefore) {
		t.Error("kept artifact was rewritten; cleanup must not touch desired files")
	}
}

// TestReconcile_StaleGalleryEntryPruned verifies the invariant that no
// gallery entry points at a missing or undesired artifact.
func TestReconcile_StaleGalleryEntryPruned(t *testing.T) {
	up := newFakeUpstream(t)
	up.add("acme.tool", map[string]string{"2.0.0": ">=1.80.0"})
	cfg := testConfig(t, up)

	// Seed a gallery entry for an extension that is no longer synced.
	legacy := gallery.NewStore(cfg.Market("legacy").Directory)
	if err := os.MkdirAll(legacy.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := legacy.Put(gallery.Entry{
		ID: "gone.ext", Version: "1.0.0",
		Metadata: json.RawMessage(`{}`), VSIXPath: "gone.ext-1.0.0.vsix",
	}); err != nil {
		t.Fatalf("seeding gallery: %v", err)
	}

	if _, err := newReconciler(cfg, nil).Reconcile(context.Background(), []string{"acme.tool"}); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}

	entries := legacy.Load()
	if _, ok := entries["gone.ext"]; ok {
		t.Error("stale gallery entry survived cleanup")
	}
	if _, ok := entries["acme.tool"]; !ok {
		t.Error("desired gallery entry missing after cleanup")
	}
}

// TestReconcile_UnknownExtensionSkipped verifies that one missing extension
// does not abort the batch.
func TestReconcile_UnknownExtensionSkipped(t *testing.T) {
	up := newFakeUpstream(t)
	up.add("acme.tool", map[string]string{"2.0.0": ">=1.80.0"})
	cfg := testConfig(t, up)

	report, err := newReconciler(cfg, nil).Reconcile(context.Background(),
		[]string{"ghost.ext", "acme.tool"})
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("Failures = %+v; want exactly one", report.Failures)
	}
	f := report.Failures[0]
	if f.Extension != "ghost.ext" || f.Kind != history.KindNotFound {
		t.Errorf("failure = %+v; want ghost.ext/%s", f, history.KindNotFound)
	}
	assertFileExists(t, filepath.Join(cfg.Market("modern").Directory, "acme.tool-2.0.0.vsix"))
}

// TestReconcile_RecordsHistory verifies run and event recording.
func TestReconcile_RecordsHistory(t *testing.T) {
	up := newFakeUpstream(t)
	up.add("acme.tool", map[string]string{"2.0.0": ">=1.80.0"})
	cfg := testConfig(t, up)

	hist, err := history.New(":memory:")
	if err != nil {
		t.Fatalf("history.New() failed: %v", err)
	}
	defer hist.Close()
	if err := hist.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	if _, err := newReconciler(cfg, hist).Reconcile(context.Background(), []string{"acme.tool"}); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}

	runs, err := hist.RecentRuns(1)
	if err != nil {
		t.Fatalf("RecentRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs; want 1", len(runs))
	}
	if runs[0].DownloadCount != 2 || runs[0].Markets != "legacy,modern" {
		t.Errorf("run = %+v; want 2 downloads across legacy,modern", runs[0])
	}

	events, err := hist.EventsForRun(runs[0].ID)
	if err != nil {
		t.Fatalf("EventsForRun() failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events; want 2 downloads", len(events))
	}
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file %s: %v", path, err)
	}
}
