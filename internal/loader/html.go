package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Aman-CERP/corpusrag/internal/document"
)

// Ensure HTMLLoader implements the interface.
var _ DocumentLoader = (*HTMLLoader)(nil)

// HTMLLoader loads the visible text of an HTML file as one Document.
type HTMLLoader struct{}

// Load implements DocumentLoader.
func (l *HTMLLoader) Load(ctx context.Context, path string) ([]document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	page, err := ParseHTML(f)
	if err != nil {
		return nil, err
	}
	return []document.Document{page.Document(path)}, nil
}

// HTMLPage is the text and head metadata extracted from an HTML document.
type HTMLPage struct {
	Text        string
	Title       string
	Description string
	Language    string
}

// Document converts p into a Document for source. Empty head fields are
// left out of the metadata.
func (p HTMLPage) Document(source string) document.Document {
	doc := document.New(p.Text, source)
	if p.Title != "" {
		doc.Metadata[document.KeyTitle] = p.Title
	}
	if p.Description != "" {
		doc.Metadata[document.KeyDescription] = p.Description
	}
	if p.Language != "" {
		doc.Metadata[document.KeyLanguage] = p.Language
	}
	return doc
}

// ParseHTML extracts visible body text (one line per block element) plus
// the title, meta description and lang attribute.
func ParseHTML(r io.Reader) (HTMLPage, error) {
	root, err := html.Parse(r)
	if err != nil {
		return HTMLPage{}, fmt.Errorf("parse html: %w", err)
	}

	var (
		page HTMLPage
		sb   strings.Builder
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Html:
				page.Language = strings.TrimSpace(attr(n, "lang"))
			case atom.Title:
				if page.Title == "" {
					page.Title = strings.TrimSpace(nodeText(n))
				}
				return
			case atom.Meta:
				if strings.EqualFold(attr(n, "name"), "description") && page.Description == "" {
					page.Description = strings.TrimSpace(attr(n, "content"))
				}
				return
			case atom.Script, atom.Style, atom.Noscript, atom.Svg, atom.Template, atom.Iframe:
				return
			}
		case html.TextNode:
			sb.WriteString(strings.Map(flattenNewline, n.Data))
			return
		}

		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			sb.WriteByte('\n')
		}
	}
	walk(root)

	page.Text = tidyLines(sb.String())
	return page, nil
}

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func flattenNewline(r rune) rune {
	if r == '\n' || r == '\r' {
		return ' '
	}
	return r
}

// tidyLines collapses runs of whitespace inside each line and drops blank lines.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
