// Package gitignore matches corpus paths against exclude rules written in
// gitignore syntax. Patterns support *, ? and ** globs and character
// classes. A leading or inner / anchors a pattern at the corpus root, a
// trailing / restricts it to directories, and a leading ! re-includes what
// earlier rules excluded. The last matching rule wins.
//
//	m := gitignore.New("**/.git", "drafts/", "*.tmp", "!keep.tmp")
//	m.Match("notes/a.tmp", false) // true
//	m.Match("keep.tmp", false)    // false
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Matcher holds compiled rules. Build it fully before sharing it between
// goroutines; Match does not lock.
type Matcher struct {
	rules []rule
}

type rule struct {
	source   string
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

// New compiles patterns into a Matcher. Blank lines and # comments are
// ignored.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.Add(p)
	}
	return m
}

// Add appends one pattern.
func (m *Matcher) Add(pattern string) {
	if r, ok := parse(pattern); ok {
		m.rules = append(m.rules, r)
	}
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Patterns returns the rules as written, negations included.
func (m *Matcher) Patterns() []string {
	out := make([]string, len(m.rules))
	for i, r := range m.rules {
		out[i] = r.source
	}
	return out
}

// Match reports whether rel, a path relative to the corpus root, is
// excluded. A path inside an excluded directory is excluded too.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}
	parts := strings.Split(rel, "/")

	excluded := false
	for _, r := range m.rules {
		if r.matches(parts, isDir) {
			excluded = !r.negate
		}
	}
	return excluded
}

// ReadFile returns the patterns in an ignore file, one per line.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		patterns = append(patterns, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return patterns, nil
}

// matches tests every ancestor of the path, then the path itself.
func (r rule) matches(parts []string, isDir bool) bool {
	for i := range parts {
		if r.dirOnly && i == len(parts)-1 && !isDir {
			return false
		}
		if r.re.MatchString(strings.Join(parts[:i+1], "/")) {
			return true
		}
		if !r.anchored && r.re.MatchString(parts[i]) {
			return true
		}
	}
	return false
}

func parse(line string) (rule, bool) {
	// "\ " keeps a trailing space.
	escapedSpace := strings.HasSuffix(line, `\ `)
	pattern := strings.TrimSpace(line)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return rule{}, false
	}
	r := rule{source: pattern}

	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
	case strings.HasPrefix(pattern, "!"):
		r.negate = true
		pattern = pattern[1:]
	}
	if escapedSpace {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimRight(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimLeft(pattern, "/")
	} else if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		// "docs/old" means "/docs/old", not "**/docs/old".
		r.anchored = true
	}
	if pattern == "" {
		return rule{}, false
	}

	re, err := regexp.Compile("^" + globToRegex(pattern) + "$")
	if err != nil {
		return rule{}, false
	}
	r.re = re
	return r, true
}

// globToRegex translates one glob. * and ? never cross a slash; ** does.
func globToRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				atStart := i == 0 || glob[i-1] == '/'
				switch {
				case atStart && i+2 < len(glob) && glob[i+2] == '/':
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				case atStart && i+2 == len(glob):
					b.WriteString(".*")
					i++
					continue
				}
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
