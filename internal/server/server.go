// Package server emulates the marketplace extension-query protocol against
// the local gallery, so unmodified editor clients use the mirror as if it
// were the real marketplace. Asset URLs in responses are rewritten to point
// back at this server; artifact bytes are served from the market directory.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blackwell-systems/vsixmirror/internal/gallery"
	"github.com/blackwell-systems/vsixmirror/internal/marketplace"
	"github.com/blackwell-systems/vsixmirror/internal/vsix"
)

// QueryPath is the extension-query endpoint, mirroring the upstream path so
// clients only need a different host.
const QueryPath = "/_apis/public/gallery/extensionquery"

// FilesPrefix is the path prefix under which mirrored artifacts are served.
const FilesPrefix = "/files"

// Server serves one market's gallery.
type Server struct {
	store *gallery.Store
	log   *slog.Logger
}

// New creates a Server over the given market's gallery store.
// logger nil selects slog.Default.
func New(store *gallery.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, log: logger}
}

// Handler returns the HTTP handler for the mirror endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post(QueryPath, s.handleQuery)
	r.Get(FilesPrefix+"/{filename}", s.handleFile)

	return r
}

// handleQuery implements the subset of the extension-query protocol the
// editor's install path needs: exact-name criteria, single page, one version
// per extension (the mirrored one).
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var query marketplace.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		http.Error(w, "malformed query body", http.StatusBadRequest)
		return
	}

	// Read fresh on every request: the sync path replaces the gallery
	// atomically, so there is nothing to cache or lock.
	entries := s.store.Load()

	var matched []marketplace.Extension
	seen := make(map[string]bool)
	for _, filter := range query.Filters {
		for _, criterion := range filter.Criteria {
			// Only exact-name lookups are honored; every other filter
			// type contributes zero results rather than an error.
			if criterion.FilterType != marketplace.FilterTypeExtensionName {
				continue
			}
			id := marketplace.NormalizeID(criterion.Value)
			if seen[id] {
				continue
			}
			entry, ok := entries[id]
			if !ok {
				continue
			}
			ext, err := s.buildExtension(r, entry)
			if err != nil {
				s.log.Warn("skipping gallery entry with bad metadata", "extension", id, "error", err)
				continue
			}
			matched = append(matched, ext)
			seen[id] = true
		}
	}

	resp := marketplace.QueryResponse{
		Results: []marketplace.QueryResult{{
			Extensions: matched,
			ResultMetadata: []marketplace.ResultHeader{{
				MetadataType: "ResultCount",
				MetadataItems: []marketplace.MetadataItem{
					{Name: "TotalCount", Count: len(matched)},
				},
			}},
		}},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn("failed to write query response", "error", err)
	}
}

// buildExtension shapes a response record from a gallery entry: upstream
// identity and display fields, exactly one version (the mirrored one), and
// the VSIX asset rewritten to this server's own files endpoint.
func (s *Server) buildExtension(r *http.Request, entry gallery.Entry) (marketplace.Extension, error) {
	var ext marketplace.Extension
	if err := json.Unmarshal(entry.Metadata, &ext); err != nil {
		return marketplace.Extension{}, fmt.Errorf("decode stored metadata: %w", err)
	}

	localURL := fmt.Sprintf("http://%s%s/%s", r.Host, FilesPrefix, entry.VSIXPath)

	var mirrored *marketplace.Version
	for i := range ext.Versions {
		if ext.Versions[i].Version == entry.Version {
			mirrored = &ext.Versions[i]
			break
		}
	}
	if mirrored == nil {
		// Metadata predates the mirrored version; synthesize a minimal
		// record so the client can still install.
		mirrored = &marketplace.Version{Version: entry.Version}
	}

	mirrored.Files = []marketplace.Asset{{
		AssetType: marketplace.AssetTypeVSIXPackage,
		Source:    localURL,
	}}
	mirrored.AssetURI = ""
	ext.Versions = []marketplace.Version{*mirrored}

	return ext, nil
}

// handleFile remaps an artifact request to the market directory and hands
// the actual byte serving to the stdlib file handler.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	// Only VSIX artifacts are served; in particular gallery.json lives in
	// the same directory and stays private. Artifact names never contain
	// path separators, so anything else is rejected outright.
	if filename != filepath.Base(filename) || !strings.HasSuffix(filename, vsix.Ext) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filepath.Join(s.store.Dir(), filename))
}

// ListenAndServe runs the mirror on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("serving marketplace mirror", "addr", addr, "dir", s.store.Dir())
	return http.ListenAndServe(addr, s.Handler())
}
