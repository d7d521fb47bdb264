package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/corpusrag/internal/async"
	"github.com/Aman-CERP/corpusrag/internal/index"
	"github.com/Aman-CERP/corpusrag/internal/store"
	"github.com/Aman-CERP/corpusrag/internal/telemetry"
	"github.com/Aman-CERP/corpusrag/pkg/version"
)

// MaxK caps the number of chunks a single search tool call may request.
const MaxK = 50

// Searcher is the read side of an index. *index.Retriever implements it.
type Searcher interface {
	SearchTopK(ctx context.Context, query string, k int) ([]index.Result, error)
	K() int
	Manifest() store.Manifest
}

// Server is the MCP server. It bridges AI clients with a corpus index.
type Server struct {
	mcp     *mcp.Server
	logger  *slog.Logger
	metrics *telemetry.QueryMetrics

	mu       sync.RWMutex
	searcher Searcher
	builds   *async.BuildProgress
}

// NewServer creates a new MCP server over searcher.
// searcher may be nil until an index exists; searches then fail with
// ErrCodeIndexNotFound. metrics may be nil.
func NewServer(searcher Searcher, metrics *telemetry.QueryMetrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		searcher: searcher,
		metrics:  metrics,
		logger:   logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    version.Name,
			Version: version.GetInfo().Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()
	return s
}

// SetSearcher replaces the searcher, for example after a rebuild, and
// returns the previous one so the caller can close it.
func (s *Server) SetSearcher(next Searcher) Searcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.searcher
	s.searcher = next
	return prev
}

// SetBuildProgress makes the stats tool report background rebuilds.
func (s *Server) SetBuildProgress(p *async.BuildProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds = p
}

func (s *Server) current() Searcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searcher
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over the indexed corpus. Returns the chunks most similar to the query with their source file or URL and a similarity score.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "stats",
		Description: "Describe the opened index (embedding model, dimensions, chunk count, build time) and the queries served so far.",
	}, s.statsHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 2))
}

// searchHandler is the MCP SDK handler for the search tool.
// The text content is markdown; the structured content is SearchOutput.
func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	searcher := s.current()
	if searcher == nil {
		return nil, SearchOutput{}, MapError(ErrIndexNotFound)
	}

	start := time.Now()
	requestID := uuid.NewString()[:8]
	k := clampK(input.K, searcher.K(), MaxK)

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("k", k))

	results, err := searcher.SearchTopK(ctx, input.Query, k)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	output := SearchOutput{
		Query:   input.Query,
		Results: make([]SearchResultOutput, 0, len(results)),
	}
	for _, r := range results {
		output.Results = append(output.Results, ToSearchResultOutput(r))
	}

	text := &mcp.TextContent{Text: FormatSearchResults(input.Query, results)}
	return &mcp.CallToolResult{Content: []mcp.Content{text}}, output, nil
}

// statsHandler is the MCP SDK handler for the stats tool.
func (s *Server) statsHandler(_ context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	StatsOutput,
	error,
) {
	s.mu.RLock()
	searcher, builds := s.searcher, s.builds
	s.mu.RUnlock()

	var out StatsOutput
	if builds != nil {
		snapshot := builds.Snapshot()
		out.Build = &snapshot
	}
	if searcher == nil {
		// While the first build runs there is no index to describe yet.
		if out.Build == nil {
			return nil, StatsOutput{}, MapError(ErrIndexNotFound)
		}
		return nil, out, nil
	}
	out.Index = ToIndexInfo(searcher.Manifest(), searcher.K())
	out.Queries = ToQueryMetrics(s.metrics.Snapshot())
	return nil, out, nil
}

// Serve runs the server over stdio until ctx is canceled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return fmt.Errorf("mcp server: %w", err)
	}
	s.logger.Info("MCP server stopped")
	return nil
}
