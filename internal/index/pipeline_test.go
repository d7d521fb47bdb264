package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/corpusrag/internal/chunk"
	"github.com/Aman-CERP/corpusrag/internal/document"
	"github.com/Aman-CERP/corpusrag/internal/embed"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/loader"
	"github.com/Aman-CERP/corpusrag/internal/normalize"
	"github.com/Aman-CERP/corpusrag/internal/scanner"
	"github.com/Aman-CERP/corpusrag/internal/source"
	"github.com/Aman-CERP/corpusrag/internal/store"
	"github.com/Aman-CERP/corpusrag/internal/telemetry"
	"github.com/Aman-CERP/corpusrag/internal/ui"
)

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (r *recordingReporter) CaptureError(_ context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

type recordingRenderer struct {
	ui.NopRenderer
	mu       sync.Mutex
	stages   []ui.Stage
	complete *ui.CompletionStats
	errors   int
}

func (r *recordingRenderer) UpdateProgress(e ui.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stages) == 0 || r.stages[len(r.stages)-1] != e.Stage {
		r.stages = append(r.stages, e.Stage)
	}
}

func (r *recordingRenderer) AddError(ui.ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
}

func (r *recordingRenderer) Complete(s ui.CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = &s
}

// failingEmbedder embeds single texts but fails every batch.
type failingEmbedder struct{ *embed.StaticEmbedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider unavailable")
}

type staticSource struct {
	docs []document.Document
}

func (s staticSource) Load(context.Context) ([]document.Document, source.Stats, error) {
	return s.docs, source.Stats{Combined: len(s.docs)}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func corpusSource(root string) DocumentSource {
	walker := scanner.New(loader.NewDispatcher(), nil, scanner.Options{})
	return source.New(walker, nil, root, nil, nil)
}

func newTestPipeline(t *testing.T, root, dir string, mutate func(*Deps)) *Pipeline {
	t.Helper()
	splitter, err := chunk.New(chunk.DefaultChunkSize, chunk.DefaultChunkOverlap, chunk.DefaultSeparator)
	require.NoError(t, err)

	deps := Deps{
		Source:     corpusSource(root),
		Splitter:   splitter,
		Embedder:   embed.NewStaticEmbedder(),
		Normalizer: normalize.New("linux"),
	}
	if mutate != nil {
		mutate(&deps)
	}
	p, err := NewPipeline(Config{PersistDir: dir, BatchSize: 2}, deps)
	require.NoError(t, err)
	return p
}

func siblings(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPipeline_SingleShortFileYieldsOneChunk(t *testing.T) {
	// Given: a corpus with one short text file
	root := t.TempDir()
	path := filepath.Join(root, "notes.txt")
	writeFile(t, path, "A\nB\nC")
	dir := filepath.Join(t.TempDir(), "index")

	// When: the pipeline runs
	r, res, err := newTestPipeline(t, root, dir, nil).RunWithResult(context.Background())
	require.NoError(t, err)
	defer r.Close()

	// Then: exactly one chunk with the original content and source is indexed
	assert.Equal(t, 1, res.Documents)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 1, res.Manifest.ChunkCount)
	assert.NotEmpty(t, res.RunID)

	results, err := r.Search(context.Background(), "B")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A\nB\nC", results[0].Document.Content)
	assert.Equal(t, path, results[0].Document.Source())
}

func TestPipeline_CSVBecomesOneDocument(t *testing.T) {
	// Given: a CSV file with three rows
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "fruit.csv"), "name\napple\nbanana\ncherry\n")
	dir := filepath.Join(t.TempDir(), "index")

	// When: the pipeline runs
	r, res, err := newTestPipeline(t, root, dir, nil).RunWithResult(context.Background())
	require.NoError(t, err)
	defer r.Close()

	// Then: the rows are joined into one document and one chunk
	assert.Equal(t, 1, res.Documents)
	assert.Equal(t, 1, res.Chunks)

	results, err := r.Search(context.Background(), "banana")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "name: apple\nname: banana\nname: cherry", results[0].Document.Content)
	assert.Equal(t, map[string]any{document.KeySource: filepath.Join(root, "fruit.csv")}, results[0].Document.Metadata)
}

func TestPipeline_EmptyCorpusBuildsEmptyIndex(t *testing.T) {
	// Given: an empty root and no URLs
	root := t.TempDir()
	dir := filepath.Join(t.TempDir(), "index")

	// When: the pipeline runs
	r, res, err := newTestPipeline(t, root, dir, nil).RunWithResult(context.Background())
	require.NoError(t, err)
	defer r.Close()

	// Then: an empty but valid index is built and searches return nothing
	assert.Zero(t, res.Chunks)
	assert.Zero(t, r.Manifest().ChunkCount)

	results, err := r.Search(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPipeline_NestedFileIsDiscovered(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "b", "deep.md"), "# Deep\n\nnested content")
	dir := filepath.Join(t.TempDir(), "index")

	r, res, err := newTestPipeline(t, root, dir, nil).RunWithResult(context.Background())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 1, res.Documents)
	results, err := r.Search(context.Background(), "nested")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, filepath.Join(root, "a", "b", "deep.md"), results[0].Document.Source())
}

func TestPipeline_RebuildReplacesPreviousIndex(t *testing.T) {
	// Given: an index built from a.txt
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha document")
	dir := filepath.Join(t.TempDir(), "index")
	p := newTestPipeline(t, root, dir, nil)

	r1, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, r1.Close())

	// When: the corpus changes and the pipeline runs again
	require.NoError(t, os.Remove(filepath.Join(root, "a.txt")))
	writeFile(t, filepath.Join(root, "b.txt"), "beta document")
	writeFile(t, filepath.Join(root, "c.txt"), "gamma document")
	r2, err := p.Run(context.Background())
	require.NoError(t, err)
	defer r2.Close()

	// Then: only the new documents are indexed and no staging directories remain
	assert.Equal(t, 2, r2.Manifest().ChunkCount)
	results, err := r2.SearchTopK(context.Background(), "document", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.NotEqual(t, filepath.Join(root, "a.txt"), res.Document.Source())
	}
	assert.ElementsMatch(t, []string{"index", "index.lock"}, siblings(t, dir))
}

func TestPipeline_LockedDirectoryFailsFast(t *testing.T) {
	// Given: another holder of the index lock
	root := t.TempDir()
	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.MkdirAll(filepath.Dir(dir), 0o755))
	lock, err := store.AcquireDirLock(dir)
	require.NoError(t, err)
	defer lock.Release()

	reporter := &recordingReporter{}
	renderer := &recordingRenderer{}
	p := newTestPipeline(t, root, dir, func(d *Deps) {
		d.Reporter = reporter
		d.Renderer = renderer
	})

	// When: the pipeline runs
	r, err := p.Run(context.Background())

	// Then: it fails with the lock error and reports it once
	require.Error(t, err)
	assert.Nil(t, r)
	assert.Equal(t, crerrors.ErrCodeIndexLocked, crerrors.GetCode(err))
	require.Len(t, reporter.errs, 1)
	assert.Equal(t, crerrors.ErrCodeIndexLocked, reporter.tags[0]["error_code"])
	assert.NotEmpty(t, reporter.tags[0]["run_id"])
	assert.Equal(t, 1, renderer.errors)
}

func TestPipeline_EmbeddingFailureKeepsPreviousIndex(t *testing.T) {
	// Given: a successfully built index
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	dir := filepath.Join(t.TempDir(), "index")
	r, err := newTestPipeline(t, root, dir, nil).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// When: a rebuild fails while embedding
	writeFile(t, filepath.Join(root, "b.txt"), "beta")
	reporter := &recordingReporter{}
	failing := newTestPipeline(t, root, dir, func(d *Deps) {
		d.Embedder = failingEmbedder{embed.NewStaticEmbedder()}
		d.Reporter = reporter
	})
	_, err = failing.Run(context.Background())

	// Then: the error is an embedding failure and the old index is intact
	require.Error(t, err)
	assert.Equal(t, crerrors.ErrCodeEmbeddingFailed, crerrors.GetCode(err))
	assert.Len(t, reporter.errs, 1)
	assert.ElementsMatch(t, []string{"index", "index.lock"}, siblings(t, dir))

	old, err := Open(context.Background(), dir, embed.NewStaticEmbedder(), 4)
	require.NoError(t, err)
	defer old.Close()
	assert.Equal(t, 1, old.Manifest().ChunkCount)
}

func TestPipeline_MissingRootFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	p := newTestPipeline(t, filepath.Join(t.TempDir(), "missing"), dir, nil)

	_, err := p.Run(context.Background())

	require.Error(t, err)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipeline_DocumentWithoutSourceIsRejected(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	p := newTestPipeline(t, "", dir, func(d *Deps) {
		d.Source = staticSource{docs: []document.Document{{Content: "orphan"}}}
	})

	_, err := p.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, crerrors.ErrCodeInvalidInput, crerrors.GetCode(err))
}

func TestPipeline_NormalizesBeforeIndexing(t *testing.T) {
	// Given: a document with a rune cp932 cannot hold, and forced normalisation
	dir := filepath.Join(t.TempDir(), "index")
	p := newTestPipeline(t, "", dir, func(d *Deps) {
		d.Source = staticSource{docs: []document.Document{document.New("日本語😀テキスト", "/corpus/ja.txt")}}
		d.Normalizer = normalize.New("windows")
	})

	// When: the pipeline runs
	r, err := p.Run(context.Background())
	require.NoError(t, err)
	defer r.Close()

	// Then: the stored chunk has the rune removed
	results, err := r.Search(context.Background(), "日本語")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "日本語テキスト", results[0].Document.Content)
}

func TestPipeline_ReportsStagesInOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "one\ntwo\nthree")
	renderer := &recordingRenderer{}
	p := newTestPipeline(t, root, filepath.Join(t.TempDir(), "index"), func(d *Deps) {
		d.Renderer = renderer
	})

	r, err := p.Run(context.Background())
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []ui.Stage{ui.StageLoading, ui.StageChunking, ui.StageEmbedding, ui.StageIndexing}, renderer.stages)
	require.NotNil(t, renderer.complete)
	assert.Equal(t, 1, renderer.complete.Chunks)
	assert.Equal(t, "static", renderer.complete.Embedder.Provider)
}

func TestPipeline_MetricsAttachedToRetriever(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "metrics")
	metrics := telemetry.NewQueryMetrics(telemetry.DefaultQueryMetricsConfig())
	p := newTestPipeline(t, root, filepath.Join(t.TempDir(), "index"), func(d *Deps) {
		d.Metrics = metrics
	})

	r, err := p.Run(context.Background())
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Search(context.Background(), "metrics")
	require.NoError(t, err)

	assert.Equal(t, int64(1), metrics.Snapshot().TotalQueries)
}

func TestNewPipeline_Validation(t *testing.T) {
	splitter, err := chunk.New(10, 0, "\n")
	require.NoError(t, err)
	src := staticSource{}
	e := embed.NewStaticEmbedder()

	tests := []struct {
		name string
		cfg  Config
		deps Deps
	}{
		{"no dir", Config{}, Deps{Source: src, Splitter: splitter, Embedder: e}},
		{"no source", Config{PersistDir: "x"}, Deps{Splitter: splitter, Embedder: e}},
		{"no splitter", Config{PersistDir: "x"}, Deps{Source: src, Embedder: e}},
		{"bad splitter", Config{PersistDir: "x"}, Deps{Source: src, Splitter: &chunk.Splitter{ChunkSize: 5, ChunkOverlap: 5}, Embedder: e}},
		{"no embedder", Config{PersistDir: "x"}, Deps{Source: src, Splitter: splitter}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPipeline(tt.cfg, tt.deps)
			assert.Error(t, err)
			assert.Nil(t, p)
		})
	}
}
