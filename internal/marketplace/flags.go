package marketplace

// QueryFlags selects which metadata sections the upstream API includes in a
// query response.
type QueryFlags int

// Individual capability flags of the extension-query API.
const (
	FlagIncludeVersions            QueryFlags = 0x1
	FlagIncludeFiles               QueryFlags = 0x2
	FlagIncludeCategoryAndTags     QueryFlags = 0x4
	FlagIncludeVersionProperties   QueryFlags = 0x10
	FlagIncludeInstallationTargets QueryFlags = 0x80
	FlagIncludeAssetURI            QueryFlags = 0x200
	FlagIncludeLatestVersionOnly   QueryFlags = 0x1000
)

// DefaultQueryFlags requests everything the resolver needs: the full version
// list with per-version properties (engine ranges) and files (VSIX asset
// URLs). FlagIncludeLatestVersionOnly is excluded because resolution scans
// the whole version list.
const DefaultQueryFlags = FlagIncludeVersions |
	FlagIncludeFiles |
	FlagIncludeCategoryAndTags |
	FlagIncludeVersionProperties |
	FlagIncludeInstallationTargets |
	FlagIncludeAssetURI
