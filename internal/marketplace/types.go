package marketplace

import "encoding/json"

// Wire types for the Visual Studio Marketplace extension-query API. Only the
// fields the mirror reads are declared; the full upstream payload is carried
// opaquely where it has to survive a round trip (see gallery.Entry.Metadata).

// FilterTypeExtensionName is the criterion filter type for an exact
// publisher.name lookup.
const FilterTypeExtensionName = 7

// PropertyEngine is the version property key declaring the compatible
// VS Code engine range for a release.
const PropertyEngine = "Microsoft.VisualStudio.Code.Engine"

// AssetTypeVSIXPackage is the asset type of the installable package file.
const AssetTypeVSIXPackage = "Microsoft.VisualStudio.Services.VSIXPackage"

// Criterion is a single query filter criterion.
type Criterion struct {
	FilterType int    `json:"filterType"`
	Value      string `json:"value"`
}

// Filter is one filter group of an extension query.
type Filter struct {
	Criteria   []Criterion `json:"criteria"`
	PageNumber int         `json:"pageNumber"`
	PageSize   int         `json:"pageSize"`
	SortBy     int         `json:"sortBy"`
	SortOrder  int         `json:"sortOrder"`
}

// Query is the POST body of an extension query.
type Query struct {
	Filters    []Filter   `json:"filters"`
	AssetTypes []string   `json:"assetTypes"`
	Flags      QueryFlags `json:"flags"`
}

// QueryResponse is the top-level extension query response.
type QueryResponse struct {
	Results []QueryResult `json:"results"`
}

// QueryResult is one result group, parallel to the request's filter groups.
type QueryResult struct {
	Extensions     []Extension    `json:"extensions"`
	ResultMetadata []ResultHeader `json:"resultMetadata,omitempty"`
}

// ResultHeader carries paging metadata for a result group.
type ResultHeader struct {
	MetadataType  string         `json:"metadataType"`
	MetadataItems []MetadataItem `json:"metadataItems"`
}

// MetadataItem is a single named count within a ResultHeader.
type MetadataItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Publisher identifies an extension publisher.
type Publisher struct {
	PublisherID   string `json:"publisherId,omitempty"`
	PublisherName string `json:"publisherName"`
	DisplayName   string `json:"displayName,omitempty"`
}

// Extension is the upstream metadata record for one extension.
type Extension struct {
	ExtensionID      string    `json:"extensionId,omitempty"`
	ExtensionName    string    `json:"extensionName"`
	DisplayName      string    `json:"displayName,omitempty"`
	ShortDescription string    `json:"shortDescription,omitempty"`
	Publisher        Publisher `json:"publisher"`
	Versions         []Version `json:"versions"`

	// Raw is the undecoded upstream record. The typed fields above cover
	// what the mirror reads; Raw is what the gallery persists, so fields
	// the mirror never interprets still survive the round trip.
	Raw json.RawMessage `json:"-"`
}

// ID returns the canonical lower-cased publisher.name identifier.
func (e *Extension) ID() string {
	return NormalizeID(e.Publisher.PublisherName + "." + e.ExtensionName)
}

// Version is one published release of an extension.
type Version struct {
	Version    string     `json:"version"`
	AssetURI   string     `json:"assetUri,omitempty"`
	Properties []Property `json:"properties,omitempty"`
	Files      []Asset    `json:"files,omitempty"`
}

// EngineRange returns the declared engine compatibility range, or "" when
// the release carries no engine declaration.
func (v *Version) EngineRange() string {
	for _, p := range v.Properties {
		if p.Key == PropertyEngine {
			return p.Value
		}
	}
	return ""
}

// AssetSource returns the URL of the first asset of the given type, or "".
func (v *Version) AssetSource(assetType string) string {
	for _, f := range v.Files {
		if f.AssetType == assetType {
			return f.Source
		}
	}
	return ""
}

// Property is a key/value version property.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Asset maps an asset type to its download URL.
type Asset struct {
	AssetType string `json:"assetType"`
	Source    string `json:"source"`
}
