package loader

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/Aman-CERP/corpusrag/internal/document"
)

// Ensure PDFLoader implements the interface.
var _ DocumentLoader = (*PDFLoader)(nil)

// PDFLoader loads one Document per page with page (0-indexed) and
// total_pages metadata.
type PDFLoader struct{}

// Load implements DocumentLoader.
func (l *PDFLoader) Load(ctx context.Context, path string) (docs []document.Document, err error) {
	// The parser panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	docs = make([]document.Document, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := pageText(r.Page(i))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}

		doc := document.New(text, path)
		doc.Metadata[document.KeyPage] = i - 1
		doc.Metadata[document.KeyTotalPages] = total
		docs = append(docs, doc)
	}
	return docs, nil
}

func pageText(p pdf.Page) (string, error) {
	if p.V.IsNull() {
		return "", nil
	}
	fonts := make(map[string]*pdf.Font)
	for _, name := range p.Fonts() {
		font := p.Font(name)
		fonts[name] = &font
	}
	return p.GetPlainText(fonts)
}
