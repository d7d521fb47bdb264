// Package chunk splits Documents into bounded, overlapping chunks along a
// separator.
//
// Sizes are measured in characters (runes). Text is split on the separator,
// empty pieces are dropped, and pieces are greedily merged back together
// while the merged length stays within ChunkSize. When a chunk is emitted
// the leading pieces are dropped until what remains fits within
// ChunkOverlap, so consecutive chunks share their boundary pieces. A single
// piece longer than ChunkSize is cut into ChunkSize windows that advance by
// ChunkSize-ChunkOverlap characters.
package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/corpusrag/internal/document"
)

// Defaults for Splitter.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultSeparator    = "\n"
)

// ErrInvalidSplitter is returned for a non-positive size or an overlap
// outside [0, size).
var ErrInvalidSplitter = errors.New("invalid splitter configuration")

// Splitter holds the chunking parameters.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separator    string
}

// New creates a validated Splitter.
func New(size, overlap int, separator string) (*Splitter, error) {
	s := &Splitter{ChunkSize: size, ChunkOverlap: overlap, Separator: separator}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the size and overlap bounds.
func (s *Splitter) Validate() error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidSplitter, s.ChunkSize)
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", ErrInvalidSplitter, s.ChunkOverlap, s.ChunkSize)
	}
	return nil
}

// SplitDocuments splits every document in order. Each chunk carries a copy
// of its parent's metadata.
func (s *Splitter) SplitDocuments(docs []document.Document) ([]document.Document, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var chunks []document.Document
	for _, doc := range docs {
		for _, text := range s.SplitText(doc.Content) {
			chunks = append(chunks, doc.WithContent(text))
		}
	}
	return chunks, nil
}

// SplitText splits one text. Text that fits in ChunkSize comes back as a
// single unchanged chunk; whitespace-only text yields no chunks.
func (s *Splitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.ChunkSize {
		return []string{text}
	}

	var pieces []string
	for _, p := range s.splitOnSeparator(text) {
		if utf8.RuneCountInString(p) > s.ChunkSize {
			pieces = append(pieces, s.windows(p)...)
			continue
		}
		pieces = append(pieces, p)
	}
	return s.merge(pieces)
}

func (s *Splitter) splitOnSeparator(text string) []string {
	var parts []string
	if s.Separator == "" {
		parts = strings.Split(text, "")
	} else {
		parts = strings.Split(text, s.Separator)
	}

	pieces := parts[:0]
	for _, p := range parts {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

// windows cuts an oversized piece into ChunkSize rune windows.
func (s *Splitter) windows(piece string) []string {
	runes := []rune(piece)
	stride := s.ChunkSize - s.ChunkOverlap

	var out []string
	for start := 0; start < len(runes); start += stride {
		end := min(start+s.ChunkSize, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func (s *Splitter) merge(pieces []string) []string {
	sepLen := utf8.RuneCountInString(s.Separator)

	var (
		chunks  []string
		current []string
		lengths []int
		total   int
	)
	// joinedLen is the length current would have after appending n runes.
	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)

		if joinedLen(n) > s.ChunkSize && len(current) > 0 {
			if c := s.join(current); c != "" {
				chunks = append(chunks, c)
			}
			for total > s.ChunkOverlap || (total > 0 && joinedLen(n) > s.ChunkSize) {
				drop := lengths[0]
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
				lengths = lengths[1:]
			}
		}

		total = joinedLen(n)
		current = append(current, p)
		lengths = append(lengths, n)
	}

	if c := s.join(current); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

func (s *Splitter) join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, s.Separator))
}
