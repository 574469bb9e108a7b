package detect

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/agusx1211/contextpack/internal/catalog"
)

// DefaultSearchLimit caps the number of results Search returns.
const DefaultSearchLimit = 50

var (
	globToken = regexp.MustCompile(`glob:(\S+)`)
	typeToken = regexp.MustCompile(`type:(\S+)`)
	sizeToken = regexp.MustCompile(`(?i)size:([<>])(\d+)(kb|mb)?`)
	anyToken  = regexp.MustCompile(`\b(?:glob|type|size):\S+\s*`)
)

var typeExtensions = map[string][]string{
	"js":   {".js", ".jsx", ".ts", ".tsx"},
	"py":   {".py", ".pyw"},
	"go":   {".go"},
	"css":  {".css", ".scss", ".sass"},
	"html": {".html", ".htm"},
	"json": {".json"},
	"md":   {".md", ".markdown"},
}

// Search filters the catalog with an interactive query. The query may carry
// "glob:PATTERN", "type:KIND" and "size:<N" / "size:>N" (kb by default, or
// mb) filters; whatever text remains must appear in a path as a
// case-insensitive subsequence, and results are ranked by match distance.
func Search(cat *catalog.Catalog, query string, limit int) []string {
	if cat == nil {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	paths := cat.Paths()
	if m := globToken.FindStringSubmatch(query); m != nil {
		paths = filterPaths(paths, func(p string) bool { return catalog.MatchAny(p, []string{m[1]}) })
	}
	if m := typeToken.FindStringSubmatch(query); m != nil {
		exts := typeExtensions[strings.ToLower(m[1])]
		paths = filterPaths(paths, func(p string) bool {
			for _, ext := range exts {
				if strings.HasSuffix(p, ext) {
					return true
				}
			}
			return false
		})
	}
	if m := sizeToken.FindStringSubmatch(query); m != nil {
		n, _ := strconv.ParseInt(m[2], 10, 64)
		unit := int64(1024)
		if strings.EqualFold(m[3], "mb") {
			unit = 1024 * 1024
		}
		bytes := n * unit
		paths = filterPaths(paths, func(p string) bool {
			rec, _ := cat.Get(p)
			if m[1] == ">" {
				return rec.Size > bytes
			}
			return rec.Size < bytes
		})
	}

	rest := strings.TrimSpace(anyToken.ReplaceAllString(query, ""))
	if rest == "" || len(paths) == 0 {
		if len(paths) > limit {
			paths = paths[:limit]
		}
		return paths
	}

	ranks := fuzzy.RankFindFold(rest, paths)
	sort.Stable(ranks)
	var out []string
	for _, r := range ranks {
		if len(out) == limit {
			break
		}
		out = append(out, r.Target)
	}
	return out
}

func filterPaths(paths []string, keep func(string) bool) []string {
	var out []string
	for _, p := range paths {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
