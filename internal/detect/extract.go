// Package detect finds file references in free text and keeps the
// selection in step with them.
package detect

import (
	"regexp"
	"sort"
	"strings"
)

// knownExtensions are the extensions a bare file name must carry to be
// picked up without any path or quoting around it.
var knownExtensions = []string{
	"go", "py", "pyi", "js", "jsx", "mjs", "cjs", "ts", "tsx", "java", "kt", "scala",
	"c", "h", "cc", "cpp", "hpp", "cs", "rs", "rb", "php", "swift", "m", "lua", "dart",
	"css", "scss", "sass", "less", "html", "htm", "vue", "svelte",
	"json", "yaml", "yml", "toml", "ini", "cfg", "xml", "proto", "graphql", "sql",
	"md", "rst", "txt", "csv", "sh", "bash", "zsh", "ps1", "bat", "mod", "sum", "lock",
}

var (
	pathPattern     = regexp.MustCompile(`(?:[A-Za-z0-9_\-.]+/)+[A-Za-z0-9_\-.]+\.[A-Za-z0-9]+`)
	bareNamePattern = regexp.MustCompile(`[A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*\.(?i:` + strings.Join(knownExtensions, "|") + `)\b`)
	quotedPattern   = regexp.MustCompile("[\"'`]([^\"'`]+\\.[A-Za-z0-9]+)[\"'`]")
	quotedExtension = regexp.MustCompile(`(?i)\.(js|ts|py|java|cpp|c|h|css|html|json|xml|md|txt)$`)
	filePrefix      = regexp.MustCompile("(?i)\\bfile:[ \\t]*([^\\s\"'`,;()<>]+)")
	theFilePattern  = regexp.MustCompile(`(?i)\bthe\s+([A-Za-z0-9_\-./]*[A-Za-z0-9_\-]\.[A-Za-z][A-Za-z0-9]*)\s+file\b`)
	verbPattern     = regexp.MustCompile("(?i)\\b(?:update|modify|edit|change|fix|refactor|rewrite|open|review|check|read|see|look at)\\s+(?:the\\s+)?(?:file\\s+)?[`\"']?([A-Za-z0-9_\\-./]*[A-Za-z0-9_\\-]\\.[A-Za-z][A-Za-z0-9]*)\\b")
)

// Extract returns the deduplicated, sorted set of path-like tokens found in
// text. The rules are applied independently and their results unioned:
// directory paths, bare file names with a known extension, quoted names,
// "File:" references and phrases like "the X file" or "update X".
func Extract(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	found := make(map[string]struct{})
	add := func(c string) {
		c = cleanCandidate(c)
		if c != "" {
			found[c] = struct{}{}
		}
	}

	for _, m := range pathPattern.FindAllString(text, -1) {
		add(m)
	}

	for _, loc := range bareNamePattern.FindAllStringIndex(text, -1) {
		if loc[0] > 0 {
			if prev := text[loc[0]-1]; prev == '/' || prev == '\\' || prev == '.' {
				continue
			}
		}
		if loc[1] < len(text) && text[loc[1]] == '/' {
			continue
		}
		add(text[loc[0]:loc[1]])
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		p := strings.TrimSpace(m[1])
		if strings.Contains(p, "/") || quotedExtension.MatchString(p) {
			add(p)
		}
	}

	for _, m := range filePrefix.FindAllStringSubmatch(text, -1) {
		p := strings.TrimRight(m[1], ".:!?")
		if strings.HasPrefix(p, "//") {
			continue
		}
		add(p)
	}

	for _, re := range []*regexp.Regexp{theFilePattern, verbPattern} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			add(m[1])
		}
	}

	out := make([]string, 0, len(found))
	for c := range found {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func cleanCandidate(c string) string {
	c = strings.TrimSpace(c)
	c = strings.ReplaceAll(c, "\\", "/")
	for strings.HasPrefix(c, "./") {
		c = c[2:]
	}
	return strings.TrimPrefix(c, "/")
}
