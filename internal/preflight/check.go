package preflight

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/corpusrag/internal/embed"
	"github.com/Aman-CERP/corpusrag/internal/output"
)

const (
	// DefaultProbeTimeout bounds the embedder round trip.
	DefaultProbeTimeout = 30 * time.Second

	// MinDiskSpaceBytes is the free space required before any index exists.
	MinDiskSpaceBytes = 100 * 1024 * 1024

	// MinFileDescriptors is the soft open-file limit below which doctor warns.
	MinFileDescriptors = 1024
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Target is what the checks inspect.
type Target struct {
	CorpusRoot string
	PersistDir string
	// Supports reports whether a file would be loaded. Nil counts every file.
	Supports func(path string) bool
	// Embedder is the configured embedder; nil when it could not be built.
	Embedder embed.Embedder
	// EmbedderErr is the construction error when Embedder is nil.
	EmbedderErr error
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose      bool
	probeTimeout time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithProbeTimeout bounds the embedder check.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.probeTimeout = d
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{probeTimeout: DefaultProbeTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against t, in a fixed order.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	parent := existingAncestor(filepath.Dir(filepath.Clean(t.PersistDir)))
	return []CheckResult{
		c.CheckCorpusRoot(ctx, t.CorpusRoot, t.Supports),
		c.CheckWritePermissions(parent),
		c.CheckDiskSpace(parent, requiredSpace(t.PersistDir)),
		c.CheckFileDescriptors(),
		c.CheckEmbedder(ctx, t.Embedder, t.EmbedderErr),
		c.CheckIndex(ctx, t.PersistDir, t.Embedder),
	}
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "failed", "ready_with_warnings" or "ready".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints one line per check, then the summary.
func (c *Checker) PrintResults(w *output.Writer, results []CheckResult) {
	w.Header("corpusrag preflight")
	w.Newline()

	for _, r := range results {
		line := fmt.Sprintf("%s: %s", r.Name, r.Message)
		switch r.Status {
		case StatusPass:
			w.Success(line)
		case StatusWarn:
			w.Warning(line)
		default:
			w.Error(line)
		}
		if c.verbose && r.Details != "" {
			w.Dim(r.Details)
		}
	}

	w.Newline()
	w.Statusf(output.IconInfo, "Status: %s", strings.ToUpper(c.SummaryStatus(results)))
}

// CheckWritePermissions checks that files can be created in dir.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	f, err := os.CreateTemp(dir, ".corpusrag-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot write to %s: %v", dir, err)
		result.Details = "The index directory is created next to this path; choose another index.persist_dir"
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s is writable", dir)
	return result
}

// requiredSpace is twice the current index size, so a staged rebuild fits
// beside the live index, and never less than MinDiskSpaceBytes.
func requiredSpace(persistDir string) uint64 {
	var size uint64
	_ = filepath.WalkDir(persistDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += uint64(info.Size())
		}
		return nil
	})
	return max(MinDiskSpaceBytes, 2*size)
}

// existingAncestor returns dir or its nearest existing parent.
func existingAncestor(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
