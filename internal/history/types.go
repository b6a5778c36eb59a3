package history

import "time"

// Event kinds recorded per extension during a sync run. These mirror the
// warning taxonomy of the reconciler.
const (
	KindDownloaded     = "downloaded"
	KindUpToDate       = "up-to-date"
	KindDeleted        = "deleted"
	KindNotFound       = "not-found-upstream"
	KindNoCompatible   = "no-compatible-version"
	KindNoArtifact     = "unresolved-artifact"
	KindDownloadFailed = "download-failed"
)

// Run summarizes one reconcile pass.
type Run struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Markets        string // comma-separated market names
	ExtensionCount int
	DownloadCount  int
	DeleteCount    int
}

// Event records one per-extension outcome within a run.
type Event struct {
	ID        int64
	RunID     int64
	Extension string
	Market    string
	Kind      string
	Detail    string
	CreatedAt time.Time
}
