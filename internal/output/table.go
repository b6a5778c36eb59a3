package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/blackwell-systems/vsixmirror/internal/gallery"
	"github.com/blackwell-systems/vsixmirror/internal/history"
)

// RenderGalleryTable renders the mirrored extensions of one market.
func RenderGalleryTable(market string, entries map[string]gallery.Entry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("Market %s: no extensions mirrored.\n", market)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Market %s (%d extensions)\n", market, len(entries)))
	sb.WriteString(fmt.Sprintf("%-40s %-14s %s\n", "Extension", "Version", "Artifact"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, id := range ids {
		e := entries[id]
		sb.WriteString(fmt.Sprintf("%-40s %-14s %s\n",
			truncate(id, 40), truncate(e.Version, 14), e.VSIXPath))
	}
	return sb.String()
}

// RenderRunTable renders recent sync runs, newest first.
func RenderRunTable(runs []*history.Run) string {
	if len(runs) == 0 {
		return "No sync runs recorded yet. Run 'vsixmirror sync' first.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-5s %-14s %-20s %-11s %-10s %s\n",
		"Run", "When", "Markets", "Extensions", "Downloads", "Deletions"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, run := range runs {
		sb.WriteString(fmt.Sprintf("%-5d %-14s %-20s %-11d %-10d %d\n",
			run.ID,
			formatRelativeTime(run.StartedAt),
			truncate(run.Markets, 20),
			run.ExtensionCount,
			run.DownloadCount,
			run.DeleteCount))
	}
	return sb.String()
}

// RenderEventTable renders the per-extension outcomes of one run.
func RenderEventTable(events []*history.Event) string {
	if len(events) == 0 {
		return "No events recorded for this run.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-36s %-10s %-22s %s\n", "Extension", "Market", "Outcome", "Detail"))
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	for _, e := range events {
		market := e.Market
		if market == "" {
			market = "-"
		}
		sb.WriteString(fmt.Sprintf("%-36s %-10s %-22s %s\n",
			truncate(e.Extension, 36), truncate(market, 10), e.Kind, truncate(e.Detail, 40)))
	}
	return sb.String()
}

// formatRelativeTime formats a timestamp relative to now ("3h ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// truncate shortens s to maxLen bytes with an ellipsis.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return s[:maxLen]
	}
	return s[:maxLen-1] + "…"
}
