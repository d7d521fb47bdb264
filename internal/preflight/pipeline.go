package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/corpusrag/internal/embed"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/index"
)

// probeText is embedded by the embedder check.
const probeText = "corpusrag preflight"

// CheckCorpusRoot checks that root is a readable directory and counts the
// files supports accepts.
func (c *Checker) CheckCorpusRoot(ctx context.Context, root string, supports func(string) bool) CheckResult {
	result := CheckResult{
		Name:     "corpus_root",
		Required: true,
	}

	info, err := os.Stat(root)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s: %v", root, err)
		result.Details = "Set corpus.root or pass --root"
		return result
	}
	if !info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not a directory", root)
		return result
	}

	var files, loadable int
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		files++
		if supports == nil || supports(path) {
			loadable++
		}
		return nil
	})
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read %s: %v", root, err)
		return result
	}

	result.Message = fmt.Sprintf("%s: %d loadable of %d files", root, loadable, files)
	if loadable == 0 {
		result.Status = StatusWarn
		result.Details = "An index built now would be empty"
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckEmbedder embeds a probe text and checks the vector length.
// constructErr explains a nil embedder.
func (c *Checker) CheckEmbedder(ctx context.Context, e embed.Embedder, constructErr error) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
	}

	if e == nil {
		result.Status = StatusFail
		result.Message = "not available"
		if constructErr != nil {
			result.Message = constructErr.Error()
			result.Details = suggestion(constructErr)
		}
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	start := time.Now()
	vec, err := e.Embed(ctx, probeText)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s: %v", e.ModelName(), err)
		result.Details = suggestion(err)
		return result
	}
	if len(vec) != e.Dimensions() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s returned %d dimensions, expected %d", e.ModelName(), len(vec), e.Dimensions())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims) answered in %s",
		e.ModelName(), e.Dimensions(), time.Since(start).Round(time.Millisecond))
	return result
}

// CheckIndex opens an existing index with e. A missing index is a warning,
// a mismatched or corrupt one a failure that the next index run repairs.
func (c *Checker) CheckIndex(ctx context.Context, dir string, e embed.Embedder) CheckResult {
	result := CheckResult{
		Name:     "index",
		Required: false,
	}

	if e == nil {
		result.Status = StatusWarn
		result.Message = "skipped, no embedder"
		return result
	}

	r, err := index.Open(ctx, dir, e, index.DefaultTopK)
	if err != nil {
		if crerrors.GetCode(err) == crerrors.ErrCodeIndexNotFound {
			result.Status = StatusWarn
			result.Message = fmt.Sprintf("no index at %s yet", dir)
			result.Details = "Run 'corpusrag index'"
			return result
		}
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = suggestion(err)
		return result
	}
	defer func() { _ = r.Close() }()

	m := r.Manifest()
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d chunks, %s, built %s", m.ChunkCount, m.Model, m.BuiltAt.Format(time.RFC3339))
	return result
}

func suggestion(err error) string {
	var ce *crerrors.Error
	if errors.As(err, &ce) {
		return ce.Suggestion
	}
	return ""
}
