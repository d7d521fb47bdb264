package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Aman-CERP/corpusrag/internal/document"
)

// Ensure CSVLoader implements the interface.
var _ DocumentLoader = (*CSVLoader)(nil)

// CSVLoader loads one Document per data row. The first row is the header;
// each Document's content is "header: value" lines in column order.
type CSVLoader struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
}

// Load implements DocumentLoader.
func (l *CSVLoader) Load(ctx context.Context, path string) ([]document.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(decodeText(f))
	if l.Comma != 0 {
		r.Comma = l.Comma
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var docs []document.Document
	for row := 0; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", row, err)
		}

		doc := document.New(formatRow(header, record), path)
		doc.Metadata[document.KeyRow] = row
		docs = append(docs, doc)
	}
	return docs, nil
}

// formatRow renders one record as "header: value" lines. Missing trailing
// fields render as empty values; fields beyond the header are dropped.
func formatRow(header, record []string) string {
	lines := make([]string, len(header))
	for i, name := range header {
		var value string
		if i < len(record) {
			value = strings.TrimSpace(record[i])
		}
		lines[i] = name + ": " + value
	}
	return strings.Join(lines, "\n")
}
