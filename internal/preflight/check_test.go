package preflight

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/corpusrag/internal/chunk"
	"github.com/Aman-CERP/corpusrag/internal/document"
	"github.com/Aman-CERP/corpusrag/internal/embed"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/index"
	"github.com/Aman-CERP/corpusrag/internal/output"
	"github.com/Aman-CERP/corpusrag/internal/source"
	"github.com/Aman-CERP/corpusrag/internal/ui"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckStatus_MarshalText(t *testing.T) {
	text, err := StatusWarn.MarshalText()

	require.NoError(t, err)
	assert.Equal(t, "warn", string(text))
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{"required pass is not critical", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail is critical", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail is not critical", CheckResult{Status: StatusFail, Required: false}, false},
		{"required warn is not critical", CheckResult{Status: StatusWarn, Required: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestChecker_SummaryStatus(t *testing.T) {
	pass := CheckResult{Status: StatusPass, Required: true}
	warn := CheckResult{Status: StatusWarn}
	optionalFail := CheckResult{Status: StatusFail}
	criticalFail := CheckResult{Status: StatusFail, Required: true}

	tests := []struct {
		name     string
		results  []CheckResult
		want     string
		critical bool
	}{
		{"all pass", []CheckResult{pass, pass}, "ready", false},
		{"warning", []CheckResult{pass, warn}, "ready_with_warnings", false},
		{"optional failure", []CheckResult{pass, optionalFail}, "ready_with_warnings", false},
		{"critical failure", []CheckResult{warn, criticalFail}, "failed", true},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.SummaryStatus(tt.results))
			assert.Equal(t, tt.critical, c.HasCriticalFailures(tt.results))
		})
	}
}

func TestChecker_CheckWritePermissions_Writable(t *testing.T) {
	// Given: a writable directory
	dir := t.TempDir()

	// When: checking write permissions
	result := New().CheckWritePermissions(dir)

	// Then: the check passes and leaves nothing behind
	assert.Equal(t, StatusPass, result.Status)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChecker_CheckWritePermissions_ReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	// Given: a read-only directory
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	// When: checking write permissions
	result := New().CheckWritePermissions(dir)

	// Then: the required check fails
	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestChecker_CheckCorpusRoot(t *testing.T) {
	supportsTxt := func(path string) bool { return filepath.Ext(path) == ".txt" }

	t.Run("missing root fails", func(t *testing.T) {
		result := New().CheckCorpusRoot(context.Background(), filepath.Join(t.TempDir(), "nope"), supportsTxt)
		assert.Equal(t, StatusFail, result.Status)
		assert.True(t, result.IsCritical())
	})

	t.Run("file root fails", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "a.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		result := New().CheckCorpusRoot(context.Background(), file, supportsTxt)
		assert.Equal(t, StatusFail, result.Status)
		assert.Contains(t, result.Message, "not a directory")
	})

	t.Run("no loadable files warns", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte("x"), 0o644))
		result := New().CheckCorpusRoot(context.Background(), dir, supportsTxt)
		assert.Equal(t, StatusWarn, result.Status)
		assert.Contains(t, result.Message, "0 loadable of 1 files")
	})

	t.Run("counts loadable files recursively", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "c.bin"), []byte("x"), 0o644))
		result := New().CheckCorpusRoot(context.Background(), dir, supportsTxt)
		assert.Equal(t, StatusPass, result.Status)
		assert.Contains(t, result.Message, "2 loadable of 3 files")
	})
}

// fakeEmbedder returns fixed-length vectors or a fixed error.
type fakeEmbedder struct {
	dims    int
	vecLen  int
	failure error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.failure != nil {
		return nil, f.failure
	}
	return make([]float32, f.vecLen), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int   { return f.dims }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

func TestChecker_CheckEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("static embedder passes", func(t *testing.T) {
		result := New().CheckEmbedder(ctx, embed.NewStaticEmbedder(), nil)
		assert.Equal(t, StatusPass, result.Status)
		assert.Contains(t, result.Message, "256 dims")
	})

	t.Run("construction error fails with hint", func(t *testing.T) {
		cause := crerrors.ConfigError("missing API key", nil).WithSuggestion("Set OPENAI_API_KEY")
		result := New().CheckEmbedder(ctx, nil, cause)
		assert.Equal(t, StatusFail, result.Status)
		assert.Contains(t, result.Message, "missing API key")
		assert.Equal(t, "Set OPENAI_API_KEY", result.Details)
	})

	t.Run("embed error fails", func(t *testing.T) {
		result := New().CheckEmbedder(ctx, &fakeEmbedder{dims: 4, failure: errors.New("connection refused")}, nil)
		assert.Equal(t, StatusFail, result.Status)
		assert.Contains(t, result.Message, "connection refused")
	})

	t.Run("wrong vector length fails", func(t *testing.T) {
		result := New().CheckEmbedder(ctx, &fakeEmbedder{dims: 4, vecLen: 3}, nil)
		assert.Equal(t, StatusFail, result.Status)
		assert.Contains(t, result.Message, "returned 3 dimensions, expected 4")
	})
}

// docsSource hands fixed documents to the pipeline.
type docsSource []document.Document

func (s docsSource) Load(context.Context) ([]document.Document, source.Stats, error) {
	return s, source.Stats{Combined: len(s)}, nil
}

func buildIndex(t *testing.T, dir string) {
	t.Helper()
	splitter, err := chunk.New(100, 10, "\n")
	require.NoError(t, err)
	p, err := index.NewPipeline(index.Config{PersistDir: dir}, index.Deps{
		Source:   docsSource{document.New("wind turbines on the ridge", "a.txt")},
		Splitter: splitter,
		Embedder: embed.NewStaticEmbedder(),
		Renderer: ui.NopRenderer{},
	})
	require.NoError(t, err)
	r, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestChecker_CheckIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("no embedder warns", func(t *testing.T) {
		result := New().CheckIndex(ctx, t.TempDir(), nil)
		assert.Equal(t, StatusWarn, result.Status)
	})

	t.Run("missing index warns", func(t *testing.T) {
		result := New().CheckIndex(ctx, filepath.Join(t.TempDir(), "store"), embed.NewStaticEmbedder())
		assert.Equal(t, StatusWarn, result.Status)
		assert.Contains(t, result.Message, "no index")
	})

	t.Run("matching index passes", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "store")
		buildIndex(t, dir)
		result := New().CheckIndex(ctx, dir, embed.NewStaticEmbedder())
		assert.Equal(t, StatusPass, result.Status)
		assert.Contains(t, result.Message, "1 chunks")
	})

	t.Run("dimension mismatch fails without being critical", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "store")
		buildIndex(t, dir)
		result := New().CheckIndex(ctx, dir, &fakeEmbedder{dims: 8, vecLen: 8})
		assert.Equal(t, StatusFail, result.Status)
		assert.False(t, result.IsCritical())
		assert.NotEmpty(t, result.Details)
	})
}

func TestChecker_RunAll_ReturnsAllChecks(t *testing.T) {
	// Given: a corpus with one loadable file and no index yet
	dir := t.TempDir()
	corpus := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "a.txt"), []byte("hello"), 0o644))

	// When: running every check
	results := New().RunAll(context.Background(), Target{
		CorpusRoot: corpus,
		PersistDir: filepath.Join(dir, "out", "store"),
		Embedder:   embed.NewStaticEmbedder(),
	})

	// Then: each check reports once, in order, and nothing is critical
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"corpus_root", "write_permissions", "disk_space", "file_descriptors", "embedder", "index"}, names)
	assert.False(t, New().HasCriticalFailures(results))
}

func TestChecker_PrintResults(t *testing.T) {
	// Given: one result of each status
	results := []CheckResult{
		{Name: "corpus_root", Status: StatusPass, Message: "data: 3 loadable of 3 files"},
		{Name: "index", Status: StatusWarn, Message: "no index yet", Details: "Run 'corpusrag index'"},
		{Name: "embedder", Status: StatusFail, Message: "unreachable", Required: true},
	}
	buf := &bytes.Buffer{}

	// When: printing verbosely
	New(WithVerbose(true)).PrintResults(output.New(buf), results)

	// Then: every line, the detail and the summary are printed
	out := buf.String()
	assert.Contains(t, out, output.IconSuccess+" corpus_root: data: 3 loadable of 3 files")
	assert.Contains(t, out, output.IconWarning+" index: no index yet")
	assert.Contains(t, out, "Run 'corpusrag index'")
	assert.Contains(t, out, output.IconError+" embedder: unreachable")
	assert.Contains(t, out, "Status: FAILED")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "100.0 MB", formatBytes(100*1024*1024))
}

func TestRequiredSpace(t *testing.T) {
	// Given: no index, then an index larger than half the minimum
	dir := filepath.Join(t.TempDir(), "vectorstore")
	assert.Equal(t, uint64(MinDiskSpaceBytes), requiredSpace(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "graph"), 0o755))
	big := make([]byte, 1024)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "graph", "a.bin"), big, 0o644))

	// Then: small indexes still need the minimum
	assert.Equal(t, uint64(MinDiskSpaceBytes), requiredSpace(dir))
}

func TestCheckDiskSpace_ImpossibleRequirement(t *testing.T) {
	c := New()

	result := c.CheckDiskSpace(t.TempDir(), 1<<62)

	if result.Status == StatusWarn {
		t.Skip("disk space is not checked on this platform")
	}
	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
	assert.NotEmpty(t, result.Details)
}
