package loader

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/Aman-CERP/corpusrag/internal/document"
)

// Ensure TextLoader implements the interface.
var _ DocumentLoader = (*TextLoader)(nil)

// TextLoader loads a whole plain-text or Markdown file as one Document.
type TextLoader struct{}

// Load implements DocumentLoader.
func (l *TextLoader) Load(ctx context.Context, path string) ([]document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(decodeText(f))
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}

	return []document.Document{document.New(string(content), path)}, nil
}

// decodeText honours a UTF-8 or UTF-16 byte order mark and otherwise reads
// UTF-8, replacing invalid sequences with U+FFFD.
func decodeText(r io.Reader) io.Reader {
	return transform.NewReader(r, transform.Chain(
		unicode.BOMOverride(unicode.UTF8.NewDecoder()),
		runes.ReplaceIllFormed(),
	))
}
