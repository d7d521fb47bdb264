package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestQueryMetrics_RecordAndSnapshot(t *testing.T) {
	// Given: a collector and three queries, one repeated and one empty-handed
	m := NewQueryMetrics(DefaultQueryMetricsConfig())
	m.Record(QueryEvent{Query: "vector index", ResultCount: 4, Latency: 3 * time.Millisecond})
	m.Record(QueryEvent{Query: "Vector Index ", ResultCount: 4, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Query: "unknown topic", ResultCount: 0, Latency: 3 * time.Millisecond})

	// When: a snapshot is taken
	snap := m.Snapshot()

	// Then: totals, repeats, zero results and terms are counted
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"unknown topic"}, snap.ZeroResultQueries)
	assert.InDelta(t, 33.3, snap.ZeroResultPercentage(), 0.1)
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "index", Count: 2}, snap.TopTerms[0])
	assert.Equal(t, TermCount{Term: "vector", Count: 2}, snap.TopTerms[1])
}

func TestQueryMetrics_ZeroResultsAreBounded(t *testing.T) {
	m := NewQueryMetrics(QueryMetricsConfig{ZeroResultsCapacity: 2})
	for i := range 5 {
		m.Record(QueryEvent{Query: fmt.Sprintf("q%d", i)})
	}

	snap := m.Snapshot()
	assert.Equal(t, []string{"q3", "q4"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(5), snap.ZeroResultCount)
}

func TestQueryMetrics_NilIsNoop(t *testing.T) {
	var m *QueryMetrics
	m.Record(QueryEvent{Query: "x"})
	assert.Zero(t, m.Snapshot().TotalQueries)
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"how", "build", "index"}, ExtractTerms("How to build an INDEX"))
	assert.Equal(t, []string{"日本語"}, ExtractTerms("日本語 で"))
	assert.Empty(t, ExtractTerms("  "))
}

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown := Init(Config{}, nil)
	require.NotNil(t, shutdown)
	shutdown()
	assert.False(t, Config{}.Enabled())
}

func TestInit_InvalidDSNDegrades(t *testing.T) {
	shutdown := Init(Config{DSN: "not a dsn"}, nil)
	require.NotNil(t, shutdown)
	shutdown()
}

func TestSentryReporter_CaptureWithoutClientDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		SentryReporter{}.CaptureError(context.Background(), errors.New("boom"), map[string]string{"run_id": "r"})
		SentryReporter{}.CaptureError(context.Background(), nil, nil)
		AddBreadcrumb(context.Background(), "index", "started")
	})
}
