package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/corpusrag/internal/document"
	"github.com/Aman-CERP/corpusrag/internal/index"
	"github.com/Aman-CERP/corpusrag/internal/store"
	"github.com/Aman-CERP/corpusrag/internal/telemetry"
)

// FormatSearchResults formats search results as markdown.
func FormatSearchResults(query string, results []index.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r index.Result) {
	fmt.Fprintf(sb, "### %d. %s", num, r.Document.Source())
	if page, ok := pageOf(r.Document); ok {
		fmt.Fprintf(sb, " (page %d)", page+1)
	}
	fmt.Fprintf(sb, " (score: %.2f)\n\n", r.Score)

	if title, ok := r.Document.Metadata[document.KeyTitle].(string); ok && title != "" {
		fmt.Fprintf(sb, "**Title:** %s\n\n", title)
	}
	fmt.Fprintf(sb, "```\n%s\n```\n\n", r.Document.Content)
}

// ToSearchResultOutput converts a retrieved chunk to the tool output format.
// Source and page are lifted out of the metadata.
func ToSearchResultOutput(r index.Result) SearchResultOutput {
	out := SearchResultOutput{
		Source:  r.Document.Source(),
		Content: r.Document.Content,
		Score:   float64(r.Score),
	}
	if page, ok := pageOf(r.Document); ok {
		out.Page = &page
	}

	for k, v := range r.Document.Metadata {
		if k == document.KeySource || k == document.KeyPage {
			continue
		}
		if out.Metadata == nil {
			out.Metadata = make(map[string]any)
		}
		out.Metadata[k] = v
	}
	return out
}

func pageOf(doc document.Document) (int, bool) {
	switch v := doc.Metadata[document.KeyPage].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// ToIndexInfo converts a manifest to the stats output format.
func ToIndexInfo(m store.Manifest, k int) IndexInfo {
	info := IndexInfo{
		Model:      m.Model,
		Dimensions: m.Dimensions,
		ChunkCount: m.ChunkCount,
		RunID:      m.RunID,
		TopK:       k,
	}
	if !m.BuiltAt.IsZero() {
		info.BuiltAt = m.BuiltAt.UTC().Format(time.RFC3339)
	}
	return info
}

// ToQueryMetrics converts a metrics snapshot to the stats output format.
// Collections are never nil.
func ToQueryMetrics(snap telemetry.QueryMetricsSnapshot) QueryMetrics {
	out := QueryMetrics{
		TotalQueries:        snap.TotalQueries,
		ZeroResultPct:       snap.ZeroResultPercentage(),
		ExactRepeats:        snap.ExactRepeatCount,
		TopTerms:            make([]QueryTermCount, 0, len(snap.TopTerms)),
		ZeroResultQueries:   make([]string, 0, len(snap.ZeroResultQueries)),
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
	}
	for _, tc := range snap.TopTerms {
		out.TopTerms = append(out.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	out.ZeroResultQueries = append(out.ZeroResultQueries, snap.ZeroResultQueries...)
	for bucket, count := range snap.LatencyDistribution {
		out.LatencyDistribution[string(bucket)] = count
	}
	if !snap.Since.IsZero() {
		out.Since = snap.Since.UTC().Format(time.RFC3339)
	}
	return out
}

// clampK ensures k is within bounds; k <= 0 selects the default.
func clampK(k, defaultVal, max int) int {
	if k <= 0 {
		k = defaultVal
	}
	if k > max {
		return max
	}
	return k
}
