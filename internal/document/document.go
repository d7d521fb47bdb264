// Package document defines the unit of content that flows through ingestion:
// loaders produce Documents, the splitter turns them into chunk Documents, and
// the retriever hands them back to callers.
package document

import "fmt"

// Metadata keys shared across loaders.
const (
	// KeySource is the originating file path or URL. Every Document carries it.
	KeySource = "source"
	// KeyPage is the 0-indexed page number for paginated formats.
	KeyPage = "page"
	// KeyTotalPages is the page count of the originating file.
	KeyTotalPages = "total_pages"
	// KeyRow is the 0-indexed record number for tabular formats.
	KeyRow = "row"
	// KeyTitle is the page or document title, when the format has one.
	KeyTitle = "title"
	// KeyDescription is the page description (HTML meta description).
	KeyDescription = "description"
	// KeyLanguage is the declared document language (HTML lang attribute).
	KeyLanguage = "language"
)

// Document is text plus metadata.
// Metadata values are strings except for loader-supplied integers such as
// page numbers.
type Document struct {
	Content  string
	Metadata map[string]any
}

// New creates a Document whose metadata holds only the source.
func New(content, source string) Document {
	return Document{
		Content:  content,
		Metadata: map[string]any{KeySource: source},
	}
}

// Source returns the source metadata value, or "" when missing.
func (d Document) Source() string {
	if d.Metadata == nil {
		return ""
	}
	switch v := d.Metadata[KeySource].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// WithContent returns a copy of d with different content and a cloned metadata map.
func (d Document) WithContent(content string) Document {
	return Document{
		Content:  content,
		Metadata: CloneMetadata(d.Metadata),
	}
}

// Validate checks the source invariant.
func (d Document) Validate() error {
	if d.Source() == "" {
		return fmt.Errorf("document has no %q metadata", KeySource)
	}
	return nil
}

// CloneMetadata creates a shallow copy of metadata.
func CloneMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
