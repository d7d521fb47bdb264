package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	QueryMetricsURI = "corpusrag://query_metrics"
	IndexURI        = "corpusrag://index"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Query pattern telemetry for the searches served so far",
			MIMEType:    "application/json",
		},
		s.handleQueryMetrics,
	)
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "index",
			URI:         IndexURI,
			Description: "Manifest of the opened index",
			MIMEType:    "application/json",
		},
		s.handleIndexInfo,
	)
}

func (s *Server) handleQueryMetrics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if s.metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}
	return jsonResource(QueryMetricsURI, ToQueryMetrics(s.metrics.Snapshot()))
}

func (s *Server) handleIndexInfo(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	searcher := s.current()
	if searcher == nil {
		return nil, MapError(ErrIndexNotFound)
	}
	return jsonResource(IndexURI, ToIndexInfo(searcher.Manifest(), searcher.K()))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
