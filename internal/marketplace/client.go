// Package marketplace implements the client side of the Visual Studio
// Marketplace extension-query protocol: metadata lookup by exact extension
// id and idempotent VSIX downloads.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultAPIURL is the public marketplace query endpoint.
const DefaultAPIURL = "https://marketplace.visualstudio.com/_apis/public/gallery/extensionquery"

// fallbackVSIXURL is the deterministic package URL used when a release
// carries no explicit VSIXPackage asset: publisher, name, version.
const fallbackVSIXURL = "https://marketplace.visualstudio.com/_apis/public/gallery/publishers/%s/vsextensions/%s/%s/vspackage"

const acceptHeader = "application/json;api-version=3.0-preview.1"

// DefaultTimeout bounds every upstream call. The marketplace occasionally
// hangs; an unbounded call would stall the whole sync batch.
const DefaultTimeout = 30 * time.Second

// ErrNotFound is returned when the upstream catalog has no extension with
// the queried id. Transport and decode failures are wrapped into it as well:
// the caller's reaction is identical (skip this extension, continue).
var ErrNotFound = errors.New("extension not found in upstream marketplace")

// NormalizeID lower-cases an extension identifier. Ids are case-insensitive
// everywhere in the mirror; the lower-cased form is canonical.
func NormalizeID(extID string) string {
	return strings.ToLower(strings.TrimSpace(extID))
}

// FallbackVSIXURL builds the deterministic package download URL for a
// release that has no explicit VSIX asset. Returns "" when publisher or
// name is missing from the metadata.
func FallbackVSIXURL(ext *Extension, version string) string {
	if ext.Publisher.PublisherName == "" || ext.ExtensionName == "" {
		return ""
	}
	return fmt.Sprintf(fallbackVSIXURL, ext.Publisher.PublisherName, ext.ExtensionName, version)
}

// Client queries the upstream marketplace.
type Client struct {
	apiURL string
	http   *http.Client
}

// NewClient creates a Client for the given query endpoint. An empty apiURL
// selects the public marketplace; timeout <= 0 selects DefaultTimeout.
func NewClient(apiURL string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		apiURL: apiURL,
		http:   &http.Client{Timeout: timeout},
	}
}

// FetchMetadata queries the upstream catalog for a single extension by exact
// id and returns its full metadata. Returns ErrNotFound (possibly wrapping a
// transport error) when the extension cannot be retrieved; per the batch
// policy this is never fatal to a sync run.
func (c *Client) FetchMetadata(ctx context.Context, extID string) (*Extension, error) {
	query := Query{
		Filters: []Filter{{
			Criteria:   []Criterion{{FilterType: FilterTypeExtensionName, Value: extID}},
			PageNumber: 1,
			PageSize:   1,
		}},
		AssetTypes: []string{},
		Flags:      DefaultQueryFlags,
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal extension query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extension query: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream status %d", ErrNotFound, resp.StatusCode)
	}

	// Decode the matched record to raw bytes first so the gallery can
	// persist the complete upstream blob, then into the typed view.
	var decoded struct {
		Results []struct {
			Extensions []json.RawMessage `json:"extensions"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrNotFound, err)
	}

	if len(decoded.Results) == 0 || len(decoded.Results[0].Extensions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, extID)
	}

	raw := decoded.Results[0].Extensions[0]
	var ext Extension
	if err := json.Unmarshal(raw, &ext); err != nil {
		return nil, fmt.Errorf("%w: decode extension record: %v", ErrNotFound, err)
	}
	ext.Raw = raw
	return &ext, nil
}

// DownloadVSIX fetches url into destPath. Idempotent: an existing file is
// never re-fetched or re-validated. The body is written to a temp file in
// the destination directory and renamed into place, so a failed or
// interrupted download never leaves a partial artifact under the final name.
func (c *Client) DownloadVSIX(ctx context.Context, url, destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: upstream status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("finalize %s: %w", destPath, err)
	}

	return nil
}
