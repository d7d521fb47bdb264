package mcp

import "github.com/Aman-CERP/corpusrag/internal/async"

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the natural-language query to search the corpus for"`
	K     int    `json:"k,omitempty" jsonschema:"number of chunks to return, defaults to the configured top-k"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Query   string               `json:"query" jsonschema:"the query that was searched"`
	Results []SearchResultOutput `json:"results" jsonschema:"matching chunks, best first"`
}

// SearchResultOutput is one retrieved chunk.
type SearchResultOutput struct {
	Source   string         `json:"source" jsonschema:"file path or URL the chunk came from"`
	Content  string         `json:"content" jsonschema:"chunk text"`
	Score    float64        `json:"score" jsonschema:"similarity between 0 and 1, higher is closer"`
	Page     *int           `json:"page,omitempty" jsonschema:"0-indexed page for paginated sources"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"remaining loader metadata"`
}

// StatsInput defines the input schema for the stats tool (no parameters).
type StatsInput struct{}

// StatsOutput defines the output schema for the stats tool.
type StatsOutput struct {
	Index   IndexInfo            `json:"index"`
	Queries QueryMetrics         `json:"queries"`
	Build   *async.BuildSnapshot `json:"build,omitempty" jsonschema:"background rebuild state, present when the server rebuilds on corpus changes"`
}

// IndexInfo describes the opened index.
type IndexInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	ChunkCount int    `json:"chunk_count"`
	RunID      string `json:"run_id"`
	BuiltAt    string `json:"built_at"`
	TopK       int    `json:"top_k"`
}

// QueryMetrics summarises the searches served since startup.
type QueryMetrics struct {
	TotalQueries        int64            `json:"total_queries"`
	ZeroResultPct       float64          `json:"zero_result_pct"`
	ExactRepeats        int64            `json:"exact_repeats"`
	TopTerms            []QueryTermCount `json:"top_terms"`
	ZeroResultQueries   []string         `json:"zero_result_queries"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
	Since               string           `json:"since"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}
