// Package resolver selects, for a target engine version, the extension
// release to mirror from an upstream version list.
package resolver

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/blackwell-systems/vsixmirror/internal/marketplace"
)

// ErrNoCompatibleVersion is returned when no release in the list declares an
// engine range that the target engine satisfies.
var ErrNoCompatibleVersion = errors.New("no compatible version for target engine")

// ErrUnresolvedArtifact is returned when the best compatible release yields
// no download URL. The scan stops there rather than falling through to an
// older compatible release; callers report this distinctly from
// ErrNoCompatibleVersion.
var ErrUnresolvedArtifact = errors.New("compatible version found but no artifact URL")

// Selection is the resolved release for one extension/engine pair.
type Selection struct {
	Version string
	URL     string
}

// Resolve scans ext's releases from highest to lowest version and returns
// the first one whose declared engine range contains engine, together with
// its download URL.
//
// Releases are skipped when their version does not parse, they declare no
// engine range (absence is not "compatible with everything"), the range does
// not parse, or engine does not satisfy it. Once a satisfying release is
// found it is final: if no URL can be produced for it, Resolve fails with
// ErrUnresolvedArtifact instead of trying older releases.
func Resolve(ext *marketplace.Extension, engine *semver.Version) (Selection, error) {
	type candidate struct {
		parsed  *semver.Version
		release marketplace.Version
	}

	candidates := make([]candidate, 0, len(ext.Versions))
	for _, rel := range ext.Versions {
		v, err := semver.NewVersion(rel.Version)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{parsed: v, release: rel})
	}

	// Upstream order is usually newest-first but is not trusted.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].parsed.GreaterThan(candidates[j].parsed)
	})

	for _, c := range candidates {
		rangeExpr := c.release.EngineRange()
		if rangeExpr == "" {
			continue
		}
		constraint, err := semver.NewConstraint(rangeExpr)
		if err != nil {
			continue
		}
		if !constraint.Check(engine) {
			continue
		}

		url := c.release.AssetSource(marketplace.AssetTypeVSIXPackage)
		if url == "" {
			url = marketplace.FallbackVSIXURL(ext, c.release.Version)
		}
		if url == "" {
			return Selection{}, fmt.Errorf("%w: %s %s", ErrUnresolvedArtifact, ext.ID(), c.release.Version)
		}
		return Selection{Version: c.release.Version, URL: url}, nil
	}

	return Selection{}, fmt.Errorf("%w: %s engine %s", ErrNoCompatibleVersion, ext.ID(), engine)
}
