package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"flowstate-go/internal/flow"
)

// IgnoreFileName is the ignore list written into every working tree.
const IgnoreFileName = ".gitignore"

type ignorePattern struct {
	pattern   string
	matchPath bool // match the relative path instead of the basename
	dirOnly   bool // trailing '/': match any directory component
}

// IgnoreMatcher decides which working-tree changes are noise. It understands
// the subset of ignore syntax FlowState generates:
//
//   - "*.tmp"     matches basenames anywhere
//   - "a/b.txt"   matches the path relative to the working-tree root
//   - "build/"    matches any path with a "build" directory component
//
// Blank lines and '#' comments are skipped. Negation is not supported.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "!") {
			continue
		}
		p := ignorePattern{pattern: raw}
		if strings.HasSuffix(raw, "/") {
			p.pattern = strings.TrimSuffix(raw, "/")
			p.dirOnly = true
		} else {
			p.matchPath = strings.Contains(raw, "/")
		}
		p.pattern = strings.TrimPrefix(p.pattern, "/")
		m.patterns = append(m.patterns, p)
	}
	return m
}

// NewWorkTreeMatcher builds the matcher used for the working tree at root:
// version-control metadata, the built-in ignore list, root's ignore file and extra.
func NewWorkTreeMatcher(root string, extra []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}

	raw := []string{".git/"}
	raw = append(raw, flow.DefaultIgnorePatterns...)
	raw = append(raw, fromFile...)
	raw = append(raw, extra...)
	return NewIgnoreMatcher(raw), nil
}

// Match reports whether relativePath, relative to the working-tree root, is ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)
	components := strings.Split(normalized, "/")

	for _, p := range m.patterns {
		switch {
		case p.dirOnly:
			for _, c := range components {
				if ok, _ := filepath.Match(p.pattern, c); ok {
					return true
				}
			}
		case p.matchPath:
			if ok, _ := filepath.Match(p.pattern, normalized); ok {
				return true
			}
		default:
			if ok, _ := filepath.Match(p.pattern, basename); ok {
				return true
			}
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns its raw lines.
// A missing file yields no patterns and no error.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
