package loader

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/corpusrag/internal/document"
)

// Ensure DocxLoader implements the interface.
var _ DocumentLoader = (*DocxLoader)(nil)

// DocxLoader loads the body text of an Office Open XML document as one
// Document. Paragraphs and breaks become newlines; the core properties
// title, when set, becomes title metadata.
type DocxLoader struct{}

// Load implements DocumentLoader.
func (l *DocxLoader) Load(ctx context.Context, path string) ([]document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	body, err := zr.Open("word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("docx has no word/document.xml: %w", err)
	}
	text, err := docxText(body)
	_ = body.Close()
	if err != nil {
		return nil, fmt.Errorf("parse word/document.xml: %w", err)
	}

	doc := document.New(text, path)
	if title := docxTitle(&zr.Reader); title != "" {
		doc.Metadata[document.KeyTitle] = title
	}
	return []document.Document{doc}, nil
}

// docxText streams WordprocessingML tokens, keeping w:t text and turning
// paragraph ends, breaks and tabs into whitespace.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		sb      strings.Builder
		inText  bool
		inProps int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if inProps > 0 {
				inProps++
				continue
			}
			switch t.Name.Local {
			case "pPr", "rPr", "sectPr":
				inProps = 1
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			if inProps > 0 {
				inProps--
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func docxTitle(zr *zip.Reader) string {
	rc, err := zr.Open("docProps/core.xml")
	if err != nil {
		return ""
	}
	defer rc.Close()

	var core struct {
		Title string `xml:"title"`
	}
	if err := xml.NewDecoder(rc).Decode(&core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}
