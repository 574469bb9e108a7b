package catalog

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnoreRules covers VCS metadata, editor state, dependency and build
// output directories, dotfile configs and compiled artifacts.
var DefaultIgnoreRules = []string{
	".git/",
	".svn/",
	".vscode/",
	".idea/",
	"node_modules/",
	"venv/",
	".venv/",
	"build/",
	"dist/",
	"out/",
	".next/",
	"coverage/",
	".pytest_cache/",
	"__pycache__/",
	".gitignore",
	".npmrc",
	".prettierrc",
	".eslintrc",
	".babelrc",
	"*.log",
	"*.pyc",
	"*.pyo",
	"*.pyd",
	"*.class",
}

type ruleKind int

const (
	ruleDir ruleKind = iota
	ruleName
	ruleExt
	ruleGlob
)

type rule struct {
	kind    ruleKind
	pattern string
}

// IgnorePolicy decides which paths are left out of a catalog.
// Rules ending with "/" exclude a directory anywhere in the tree, "*.ext"
// rules exclude by extension, bare names exclude by file name and anything
// else is a doublestar glob matched against the relative path (and against
// the base name when the glob has no slash).
type IgnorePolicy struct {
	rules     []rule
	gitIgnore *ignore.GitIgnore
}

// NewIgnorePolicy compiles an ordered rule list. Blank lines and lines
// starting with "#" are skipped.
func NewIgnorePolicy(rules []string) (*IgnorePolicy, error) {
	p := &IgnorePolicy{}
	for _, raw := range rules {
		r := strings.TrimSpace(raw)
		if r == "" || strings.HasPrefix(r, "#") {
			continue
		}
		r = filepath.ToSlash(r)
		switch {
		case strings.HasSuffix(r, "/"):
			p.rules = append(p.rules, rule{kind: ruleDir, pattern: strings.ToLower(strings.Trim(r, "/"))})
		case strings.HasPrefix(r, "*.") && !strings.ContainsAny(r[2:], "*?[{/"):
			p.rules = append(p.rules, rule{kind: ruleExt, pattern: strings.ToLower(r[1:])})
		case !strings.ContainsAny(r, "*?[{/"):
			p.rules = append(p.rules, rule{kind: ruleName, pattern: strings.ToLower(r)})
		default:
			if _, err := doublestar.Match(r, ""); err != nil {
				return nil, fmt.Errorf("invalid ignore pattern %q: %w", r, err)
			}
			p.rules = append(p.rules, rule{kind: ruleGlob, pattern: r})
		}
	}
	return p, nil
}

// DefaultIgnorePolicy returns a policy built from DefaultIgnoreRules.
func DefaultIgnorePolicy() *IgnorePolicy {
	p, err := NewIgnorePolicy(DefaultIgnoreRules)
	if err != nil {
		panic(err)
	}
	return p
}

// LoadGitIgnore additionally honors the .gitignore at the root of dir, if
// one exists.
func (p *IgnorePolicy) LoadGitIgnore(dir string) error {
	gitIgnorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitIgnorePath); err != nil {
		return nil
	}
	gitIgnore, err := ignore.CompileIgnoreFile(gitIgnorePath)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", gitIgnorePath, err)
	}
	p.gitIgnore = gitIgnore
	return nil
}

// Ignored reports whether a slash-delimited file path relative to the root
// should be excluded.
func (p *IgnorePolicy) Ignored(rel string) bool {
	if p == nil {
		return false
	}
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	if p.gitIgnore != nil && p.gitIgnore.MatchesPath(rel) {
		return true
	}

	lower := strings.ToLower(rel)
	segments := strings.Split(lower, "/")
	base := segments[len(segments)-1]
	dirs := segments[:len(segments)-1]

	for _, r := range p.rules {
		switch r.kind {
		case ruleDir:
			for _, d := range dirs {
				if d == r.pattern {
					return true
				}
			}
			if strings.Contains(r.pattern, "/") && strings.HasPrefix(lower, r.pattern+"/") {
				return true
			}
		case ruleName:
			if base == r.pattern {
				return true
			}
		case ruleExt:
			if strings.HasSuffix(base, r.pattern) {
				return true
			}
		case ruleGlob:
			if ok, _ := doublestar.Match(r.pattern, rel); ok {
				return true
			}
			if !strings.Contains(r.pattern, "/") {
				if ok, _ := doublestar.Match(r.pattern, path.Base(rel)); ok {
					return true
				}
			}
		}
	}
	return false
}

// IgnoredDir reports whether a whole directory can be pruned during a walk.
func (p *IgnorePolicy) IgnoredDir(rel string) bool {
	if p == nil || rel == "." || rel == "" {
		return false
	}
	rel = filepath.ToSlash(rel)
	if p.gitIgnore != nil && (p.gitIgnore.MatchesPath(rel) || p.gitIgnore.MatchesPath(rel+"/")) {
		return true
	}
	lower := strings.ToLower(rel)
	name := path.Base(lower)
	for _, r := range p.rules {
		if r.kind != ruleDir {
			continue
		}
		if name == r.pattern || lower == r.pattern {
			return true
		}
	}
	return false
}

// MatchAny reports whether rel matches any of the doublestar patterns.
// Patterns without a slash are matched against the base name.
func MatchAny(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		target := rel
		if !strings.Contains(pattern, "/") {
			target = path.Base(rel)
		}
		if ok, err := doublestar.Match(pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}
