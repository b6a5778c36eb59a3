package resolver

import (
	"errors"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/blackwell-systems/vsixmirror/internal/marketplace"
)

func mustEngine(t *testing.T, v string) *semver.Version {
	t.Helper()
	engine, err := semver.NewVersion(v)
	if err != nil {
		t.Fatalf("parsing engine %q: %v", v, err)
	}
	return engine
}

func release(version, engineRange, assetURL string) marketplace.Version {
	rel := marketplace.Version{Version: version}
	if engineRange != "" {
		rel.Properties = []marketplace.Property{{Key: marketplace.PropertyEngine, Value: engineRange}}
	}
	if assetURL != "" {
		rel.Files = []marketplace.Asset{{AssetType: marketplace.AssetTypeVSIXPackage, Source: assetURL}}
	}
	return rel
}

func acmeTool(versions ...marketplace.Version) *marketplace.Extension {
	return &marketplace.Extension{
		ExtensionName: "tool",
		Publisher:     marketplace.Publisher{PublisherName: "acme"},
		Versions:      versions,
	}
}

// TestResolve_PerEngineSelection covers the canonical split: two releases
// with adjacent engine ranges, and two markets landing on different sides.
func TestResolve_PerEngineSelection(t *testing.T) {
	ext := acmeTool(
		release("2.0.0", ">=1.90.0", "https://up/2.0.0.vsix"),
		release("1.5.0", ">=1.80.0 <1.90.0", "https://up/1.5.0.vsix"),
	)

	cases := []struct {
		engine string
		want   string
	}{
		{"1.89.0", "1.5.0"},
		{"1.93.0", "2.0.0"},
	}
	for _, tc := range cases {
		sel, err := Resolve(ext, mustEngine(t, tc.engine))
		if err != nil {
			t.Fatalf("Resolve(engine %s) failed: %v", tc.engine, err)
		}
		if sel.Version != tc.want {
			t.Errorf("Resolve(engine %s) = %s; want %s", tc.engine, sel.Version, tc.want)
		}
	}
}

// TestResolve_HighestCompatibleWins verifies the scan is version-descending
// regardless of upstream order, and that gaps are stepped over.
func TestResolve_HighestCompatibleWins(t *testing.T) {
	ext := acmeTool(
		release("1.0.0", ">=1.0.0", "https://up/1.0.0.vsix"),
		release("3.0.0", ">=1.95.0", "https://up/3.0.0.vsix"),
		release("2.0.0", ">=1.0.0", "https://up/2.0.0.vsix"),
	)

	sel, err := Resolve(ext, mustEngine(t, "1.90.0"))
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if sel.Version != "2.0.0" {
		t.Errorf("Resolve() = %s; want 2.0.0 (3.0.0 incompatible, 2.0.0 beats 1.0.0)", sel.Version)
	}
}

// TestResolve_MissingDeclarationSkipped verifies that a release without an
// engine property is skipped, not treated as compatible with everything.
func TestResolve_MissingDeclarationSkipped(t *testing.T) {
	ext := acmeTool(
		release("2.0.0", "", "https://up/2.0.0.vsix"),
		release("1.5.0", ">=1.80.0", "https://up/1.5.0.vsix"),
	)

	sel, err := Resolve(ext, mustEngine(t, "1.93.0"))
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if sel.Version != "1.5.0" {
		t.Errorf("Resolve() = %s; want 1.5.0 (2.0.0 has no engine declaration)", sel.Version)
	}
}

// TestResolve_MalformedRangeSkipped verifies that an unparseable range is
// skipped and the scan continues downward.
func TestResolve_MalformedRangeSkipped(t *testing.T) {
	ext := acmeTool(
		release("2.0.0", "not-a-range!!", "https://up/2.0.0.vsix"),
		release("1.5.0", ">=1.80.0", "https://up/1.5.0.vsix"),
	)

	sel, err := Resolve(ext, mustEngine(t, "1.93.0"))
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if sel.Version != "1.5.0" {
		t.Errorf("Resolve() = %s; want 1.5.0", sel.Version)
	}
}

// TestResolve_MalformedVersionSkipped verifies that a release whose own
// version string is not semver is dropped before the scan.
func TestResolve_MalformedVersionSkipped(t *testing.T) {
	ext := acmeTool(
		release("banana", ">=1.0.0", "https://up/banana.vsix"),
		release("1.5.0", ">=1.80.0", "https://up/1.5.0.vsix"),
	)

	sel, err := Resolve(ext, mustEngine(t, "1.93.0"))
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if sel.Version != "1.5.0" {
		t.Errorf("Resolve() = %s; want 1.5.0", sel.Version)
	}
}

func TestResolve_NoCompatibleVersion(t *testing.T) {
	ext := acmeTool(
		release("2.0.0", ">=1.90.0", "https://up/2.0.0.vsix"),
	)

	_, err := Resolve(ext, mustEngine(t, "1.80.0"))
	if !errors.Is(err, ErrNoCompatibleVersion) {
		t.Errorf("Resolve() error = %v; want errors.Is(err, ErrNoCompatibleVersion)", err)
	}
}

// TestResolve_MissingAssetStopsScan pins the scan-stop policy: when the best
// compatible release yields no URL, resolution fails outright even though an
// older compatible release with a URL exists. Downstream reconciliation
// depends on these exact semantics; do not "fix" this into a fall-through.
func TestResolve_MissingAssetStopsScan(t *testing.T) {
	ext := &marketplace.Extension{
		// No publisher name: the fallback URL cannot be built either.
		ExtensionName: "tool",
		Versions: []marketplace.Version{
			release("2.0.0", ">=1.80.0", ""),
			release("1.5.0", ">=1.80.0", "https://up/1.5.0.vsix"),
		},
	}

	_, err := Resolve(ext, mustEngine(t, "1.93.0"))
	if !errors.Is(err, ErrUnresolvedArtifact) {
		t.Errorf("Resolve() error = %v; want errors.Is(err, ErrUnresolvedArtifact)", err)
	}
}

// TestResolve_FallbackURL verifies the deterministic package URL is used
// when the release has no explicit VSIX asset but the publisher is known.
func TestResolve_FallbackURL(t *testing.T) {
	ext := acmeTool(release("2.0.0", ">=1.80.0", ""))

	sel, err := Resolve(ext, mustEngine(t, "1.93.0"))
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	want := "https://marketplace.visualstudio.com/_apis/public/gallery/publishers/acme/vsextensions/tool/2.0.0/vspackage"
	if sel.URL != want {
		t.Errorf("Resolve() URL = %q; want %q", sel.URL, want)
	}
}

// TestResolve_WildcardRange verifies that "*" (VS Code's "any engine")
// counts as a declaration and matches every engine.
func TestResolve_WildcardRange(t *testing.T) {
	ext := acmeTool(release("2.0.0", "*", "https://up/2.0.0.vsix"))

	sel, err := Resolve(ext, mustEngine(t, "1.50.0"))
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if sel.Version != "2.0.0" {
		t.Errorf("Resolve() = %s; want 2.0.0", sel.Version)
	}
}
