package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/corpusrag/internal/document"
	"github.com/Aman-CERP/corpusrag/internal/index"
	"github.com/Aman-CERP/corpusrag/internal/mcp"
	"github.com/Aman-CERP/corpusrag/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	k    int
	json bool
	full bool
}

// snippetRunes bounds the chunk text printed per result unless --full is set.
const snippetRunes = 300

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Embed the query and print the k most similar chunks, best first.

Examples:
  corpusrag search "how do refunds work"
  corpusrag search "onboarding checklist" -k 8
  corpusrag search "release notes" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, a, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of results (default: retriever.k)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&opts.full, "full", false, "Print whole chunks instead of snippets")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, a *app, query string, opts searchOptions) error {
	embedder, err := newEmbedder(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	retriever, err := openRetriever(ctx, a.cfg, embedder, nil, a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = retriever.Close() }()

	k := opts.k
	if k <= 0 {
		k = retriever.K()
	}
	results, err := retriever.SearchTopK(ctx, query, k)
	if err != nil {
		return err
	}
	a.logger.Info("search complete", slog.String("query", query), slog.Int("results", len(results)))

	out := cmd.OutOrStdout()
	if opts.json {
		return writeJSONResults(out, query, results)
	}
	return writeTextResults(out, query, results, opts.full)
}

func writeJSONResults(w io.Writer, query string, results []index.Result) error {
	payload := mcp.SearchOutput{Query: query, Results: make([]mcp.SearchResultOutput, 0, len(results))}
	for _, r := range results {
		payload.Results = append(payload.Results, mcp.ToSearchResultOutput(r))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writeTextResults(w io.Writer, query string, results []index.Result, full bool) error {
	out := output.New(w)
	if len(results) == 0 {
		out.Warningf("No results for %q", query)
		return nil
	}
	for i, r := range results {
		suffix := ""
		if page, ok := r.Document.Metadata[document.KeyPage].(int); ok {
			suffix = fmt.Sprintf(" (page %d)", page+1)
		}
		out.Hit(i+1, r.Document.Source(), suffix, r.Score)

		text := strings.TrimSpace(r.Document.Content)
		if !full {
			text = truncate(text, snippetRunes)
		}
		out.Block(text)
		out.Newline()
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
