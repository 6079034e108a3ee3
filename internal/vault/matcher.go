package vault

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher decides which vault paths are indexed.
type Matcher struct {
	patterns   []string
	extensions map[string]struct{}
}

// NewMatcher validates the exclusion patterns. Empty extensions means
// DefaultExtensions.
func NewMatcher(patterns, extensions []string) (*Matcher, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	m := &Matcher{
		patterns:   append([]string(nil), patterns...),
		extensions: make(map[string]struct{}, len(extensions)),
	}
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		m.extensions[ext] = struct{}{}
	}
	return m, nil
}

// Excluded reports whether a document path is left out of the index.
func (m *Matcher) Excluded(p string) bool {
	if p == "" {
		return true
	}
	for _, part := range strings.Split(p, "/") {
		if isHidden(part) {
			return true
		}
	}
	if _, ok := m.extensions[strings.ToLower(path.Ext(p))]; !ok {
		return true
	}
	if m.matches(p) {
		return true
	}
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if m.DirExcluded(dir) {
			return true
		}
	}
	return false
}

// DirExcluded reports whether a whole directory is left out. A pattern
// such as "archive/**" or "archive" excludes the directory.
func (m *Matcher) DirExcluded(dir string) bool {
	for _, part := range strings.Split(dir, "/") {
		if isHidden(part) {
			return true
		}
	}
	if m.matches(dir) {
		return true
	}
	for _, pattern := range m.patterns {
		if ok, _ := doublestar.Match(pattern, dir+"/x"); ok && strings.HasSuffix(pattern, "/**") {
			return true
		}
	}
	return false
}

// matches tries every pattern against the full path and the basename.
func (m *Matcher) matches(p string) bool {
	base := path.Base(p)
	for _, pattern := range m.patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
