// Package normalize sanitises text so it survives Windows-31J (cp932)
// consoles and files: NFC composition, then a round trip through the legacy
// Japanese code page that silently drops every rune the code page cannot hold.
//
// The sanitisation only runs when the target OS is Windows; elsewhere the
// Normalizer is the identity.
package normalize

import (
	"runtime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/unicode/norm"

	"github.com/Aman-CERP/corpusrag/internal/document"
)

// Normalizer applies platform-conditional sanitisation.
type Normalizer struct {
	enabled bool
}

// New creates a Normalizer for the given GOOS value.
// Sanitisation is enabled only for "windows".
func New(goos string) *Normalizer {
	return &Normalizer{enabled: goos == "windows"}
}

// ForCurrentOS creates a Normalizer for runtime.GOOS.
// force enables sanitisation on any OS.
func ForCurrentOS(force bool) *Normalizer {
	if force {
		return &Normalizer{enabled: true}
	}
	return New(runtime.GOOS)
}

// Enabled reports whether String changes its input.
func (n *Normalizer) Enabled() bool {
	return n.enabled
}

// Value normalises v when it is a string and returns every other value unchanged.
func (n *Normalizer) Value(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return n.String(s)
}

// String normalises s.
func (n *Normalizer) String(s string) string {
	if !n.enabled {
		return s
	}
	return toCP932(norm.NFC.String(s))
}

// Document normalises the content and every metadata value of doc in place.
func (n *Normalizer) Document(doc *document.Document) {
	doc.Content = n.String(doc.Content)
	for k, v := range doc.Metadata {
		doc.Metadata[k] = n.Value(v)
	}
}

// Documents normalises every document in docs in place.
func (n *Normalizer) Documents(docs []document.Document) {
	if !n.enabled {
		return
	}
	for i := range docs {
		n.Document(&docs[i])
	}
}

// Windows-31J stores these under the fullwidth or compatibility code point
// that Shift_JIS tables accept.
var cp932Compat = map[rune]rune{
	'\u00A2': '\uFFE0', // ¢
	'\u00A3': '\uFFE1', // £
	'\u00AC': '\uFFE2', // ¬
	'\u2016': '\u2225', // ‖
	'\u2212': '\uFF0D', // −
	'\u301C': '\uFF5E', // 〜
}

// User-defined characters, stored in the code page's private area and
// decoded back unchanged.
const (
	userDefinedFirst = '\uE000'
	userDefinedLast  = '\uE757'
)

// toCP932 round-trips s through the code page rune by rune, dropping runes
// it cannot represent.
func toCP932(s string) string {
	enc := japanese.ShiftJIS.NewEncoder()
	dec := japanese.ShiftJIS.NewDecoder()

	var b strings.Builder
	b.Grow(len(s))
	var buf [utf8.UTFMax]byte
	for _, r := range s {
		switch {
		// 0x5C and 0x7E are backslash and tilde in Windows-31J, so yen and
		// overline have no byte.
		case r == utf8.RuneError, r == '\u00A5', r == '\u203E':
			continue
		case r >= userDefinedFirst && r <= userDefinedLast:
			b.WriteRune(r)
			continue
		}
		if c, ok := cp932Compat[r]; ok {
			r = c
		}
		n := utf8.EncodeRune(buf[:], r)
		encoded, err := enc.Bytes(buf[:n])
		if err != nil {
			continue
		}
		decoded, err := dec.Bytes(encoded)
		if err != nil {
			continue
		}
		b.Write(decoded)
	}
	return b.String()
}
