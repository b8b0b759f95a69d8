package filesync

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes is always part of the rule set: version control, dependency
// and bytecode caches, editor and OS metadata, temp files, build output.
var DefaultExcludes = []string{
	".git", ".svn", ".hg",
	"node_modules", ".venv", "venv",
	"__pycache__", "*.pyc", "*.pyo",
	".vscode", ".idea",
	".DS_Store", "Thumbs.db",
	"*.tmp", "*.temp", "*.swp", "*~",
	"build", "dist", "*.egg-info",
	".ipynb_checkpoints", ".mypy_cache", ".pytest_cache",
}

// Rules decides which relative paths take part in a sync.
//
// A pattern without a slash is matched against every segment of the path, so
// "build" excludes both "build/x.o" and "src/build/y.o". A pattern with a slash
// is matched against the path and each of its parent directories.
type Rules struct {
	patterns      []string
	includeHidden bool
}

// NewRules unions the default excludes with the user patterns.
func NewRules(exclude []string, includeHidden bool) (Rules, error) {
	patterns := slices.Clone(DefaultExcludes)
	for _, p := range exclude {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return Rules{}, fmt.Errorf("invalid exclude pattern %q", p)
		}
		patterns = append(patterns, p)
	}
	return Rules{patterns: patterns, includeHidden: includeHidden}, nil
}

func (r Rules) Patterns() []string {
	return slices.Clone(r.patterns)
}

// Excluded reports whether the slash separated relative path must be skipped.
func (r Rules) Excluded(rel string) bool {
	rel = path.Clean(rel)
	if rel == "." || rel == "" {
		return false
	}
	segs := strings.Split(rel, "/")
	if !r.includeHidden {
		for _, s := range segs {
			if strings.HasPrefix(s, ".") {
				return true
			}
		}
	}
	for _, p := range r.patterns {
		if strings.Contains(p, "/") {
			for i := range segs {
				if ok, _ := doublestar.Match(p, strings.Join(segs[:i+1], "/")); ok {
					return true
				}
			}
			continue
		}
		for _, s := range segs {
			if ok, _ := doublestar.Match(p, s); ok {
				return true
			}
		}
	}
	return false
}
