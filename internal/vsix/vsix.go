// Package vsix handles the on-disk VSIX artifact naming convention.
//
// Mirrored artifacts are named <publisher.name>-<version>.vsix. Extension ids
// themselves contain dots and may contain hyphens, so parsing splits on the
// last hyphen and requires the version part to look like a version (contain
// a dot).
package vsix

import "strings"

// Ext is the artifact file extension, including the dot.
const Ext = ".vsix"

// Filename returns the canonical artifact filename for an extension release.
func Filename(extID, version string) string {
	return extID + "-" + version + Ext
}

// ParseFilename splits an artifact filename into extension id and version.
// Returns ok=false for names that do not follow the convention.
func ParseFilename(name string) (extID, version string, ok bool) {
	if !strings.HasSuffix(name, Ext) {
		return "", "", false
	}
	stem := strings.TrimSuffix(name, Ext)

	idx := strings.LastIndexByte(stem, '-')
	if idx <= 0 || idx == len(stem)-1 {
		return "", "", false
	}

	extID = stem[:idx]
	version = stem[idx+1:]

	// A bare word after the hyphen is part of the extension name, not a
	// version (e.g. "ms-vscode.cpptools" with no version suffix).
	if !strings.Contains(version, ".") {
		return "", "", false
	}

	return extID, version, true
}
