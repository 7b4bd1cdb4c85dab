package filtering

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gobwas/glob"
)

// NameFilter decides whether a name passes include/exclude patterns.
// The returned string says why, for debug logging.
type NameFilter interface {
	ShouldInclude(name string, include, exclude []string) (bool, string)
}

// GlobFilter matches names against gobwas/glob patterns, compiled without
// separators so that '*' also spans '/'. Compiled patterns are cached.
type GlobFilter struct {
	mu    sync.Mutex
	cache map[string]glob.Glob
}

var _ NameFilter = (*GlobFilter)(nil)

// NewGlobFilter returns an empty GlobFilter.
func NewGlobFilter() *GlobFilter {
	return &GlobFilter{cache: map[string]glob.Glob{}}
}

// compilePattern rejects what filepath.Match rejects, since its errors
// read better, then compiles with gobwas/glob.
func compilePattern(pattern string) (glob.Glob, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}
	return g, nil
}

func (f *GlobFilter) compiled(pattern string) (glob.Glob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if g, ok := f.cache[pattern]; ok {
		return g, nil
	}
	g, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	f.cache[pattern] = g
	return g, nil
}

// firstMatch returns the first of patterns that matches name, or "".
func (f *GlobFilter) firstMatch(name string, patterns []string) (string, error) {
	for _, pattern := range patterns {
		g, err := f.compiled(pattern)
		if err != nil {
			return "", fmt.Errorf("pattern '%s': %w", pattern, err)
		}
		if g.Match(name) {
			return pattern, nil
		}
	}
	return "", nil
}

// ShouldInclude applies the package precedence rules to one name.
func (f *GlobFilter) ShouldInclude(name string, include, exclude []string) (bool, string) {
	matched, err := f.firstMatch(name, exclude)
	if err != nil {
		return false, "invalid exclude " + err.Error()
	}
	if matched != "" {
		return false, fmt.Sprintf("excluded by pattern '%s'", matched)
	}

	if len(include) == 0 {
		if len(exclude) == 0 {
			return true, "no name filters specified"
		}
		return true, "matches no exclude pattern"
	}

	matched, err = f.firstMatch(name, include)
	switch {
	case err != nil:
		return false, "invalid include " + err.Error()
	case matched == "":
		return false, fmt.Sprintf("matches none of %v", include)
	}
	return true, fmt.Sprintf("included by pattern '%s'", matched)
}
