// Package async tracks index builds that run in the background of another
// command, such as the rebuilds behind 'serve --watch', so their state can
// be reported while they run.
package async

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-CERP/corpusrag/internal/ui"
)

// BuildStatus is the state of the most recent build.
type BuildStatus string

const (
	// StatusIdle means no build has started yet.
	StatusIdle BuildStatus = "idle"
	// StatusBuilding means a build is in progress.
	StatusBuilding BuildStatus = "building"
	// StatusReady means the last build completed.
	StatusReady BuildStatus = "ready"
	// StatusError means the last build failed.
	StatusError BuildStatus = "error"
)

// BuildSnapshot is an immutable copy of build progress.
type BuildSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage,omitempty"`
	Current        int     `json:"current"`
	Total          int     `json:"total"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	Builds         int     `json:"builds"`
	Failures       int     `json:"failures"`
	Warnings       int     `json:"warnings"`
	LastDocuments  int     `json:"last_documents"`
	LastChunks     int     `json:"last_chunks"`
	LastFinished   string  `json:"last_finished,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// BuildProgress records pipeline progress events. It implements
// ui.Renderer, so a pipeline reports into it like into a terminal.
type BuildProgress struct {
	mu  sync.RWMutex
	now func() time.Time

	status       BuildStatus
	stage        ui.Stage
	current      int
	total        int
	started      time.Time
	builds       int
	failures     int
	warnings     int
	lastDocs     int
	lastChunks   int
	lastFinished time.Time
	errorMessage string
}

var _ ui.Renderer = (*BuildProgress)(nil)

// NewBuildProgress creates an idle tracker.
func NewBuildProgress() *BuildProgress {
	return &BuildProgress{status: StatusIdle, now: time.Now}
}

// Start is a no-op; a build begins with its first progress event.
func (p *BuildProgress) Start(context.Context) error { return nil }

// Stop is a no-op.
func (p *BuildProgress) Stop() error { return nil }

// UpdateProgress records a stage change or a counter update.
func (p *BuildProgress) UpdateProgress(event ui.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusBuilding {
		p.status = StatusBuilding
		p.started = p.now()
		p.warnings = 0
		p.errorMessage = ""
	}
	if event.Stage != p.stage {
		p.stage = event.Stage
		p.current, p.total = 0, 0
	}
	if event.Total > 0 {
		p.total = event.Total
	}
	p.current = event.Current
}

// AddError counts warnings. A non-warning error fails the build.
func (p *BuildProgress) AddError(event ui.ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings++
		return
	}
	p.status = StatusError
	p.failures++
	p.lastFinished = p.now()
	if event.Err != nil {
		p.errorMessage = event.Err.Error()
	}
}

// Complete marks the build ready and keeps its totals.
func (p *BuildProgress) Complete(stats ui.CompletionStats) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
	p.stage = ui.StageComplete
	p.builds++
	p.lastDocs = stats.Documents
	p.lastChunks = stats.Chunks
	p.lastFinished = p.now()
	p.current, p.total = 0, 0
}

// IsBuilding reports whether a build is in progress.
func (p *BuildProgress) IsBuilding() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status == StatusBuilding
}

// Snapshot returns the current state.
func (p *BuildProgress) Snapshot() BuildSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := BuildSnapshot{
		Status:        string(p.status),
		Builds:        p.builds,
		Failures:      p.failures,
		Warnings:      p.warnings,
		LastDocuments: p.lastDocs,
		LastChunks:    p.lastChunks,
		ErrorMessage:  p.errorMessage,
	}
	if p.status == StatusBuilding {
		s.Stage = p.stage.String()
		s.Current = p.current
		s.Total = p.total
		if p.total > 0 {
			s.ProgressPct = float64(p.current) / float64(p.total) * 100.0
		}
		s.ElapsedSeconds = int(p.now().Sub(p.started).Seconds())
	}
	if !p.lastFinished.IsZero() {
		s.LastFinished = p.lastFinished.UTC().Format(time.RFC3339)
	}
	return s
}
