package detect

import (
	"errors"
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/agusx1211/contextpack/internal/catalog"
)

const (
	// Threshold is the highest fuzzy score still accepted as a match.
	// Scores run from 0 (perfect) to 1.
	Threshold = 0.3

	// MaxIndexSize bounds the number of paths a fuzzy index is built for.
	MaxIndexSize = 50000

	fullWeight = 1.0
	nameWeight = 2.0
)

// ErrIndexUnavailable means no fuzzy index could be built. Matching still
// works through the exact and case-insensitive tiers.
var ErrIndexUnavailable = errors.New("fuzzy index unavailable")

// Kind is the tier a match was resolved at.
type Kind int

const (
	Exact Kind = iota
	CaseInsensitive
	Fuzzy
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case CaseInsensitive:
		return "case"
	default:
		return "fuzzy"
	}
}

// Match is a resolved candidate.
type Match struct {
	Candidate string
	Path      string
	Kind      Kind
	Score     float64
}

type indexItem struct {
	path string
	full string
	name string
}

// Index is a fuzzy matcher over two fields of every path: the full path
// and the file name, the latter weighing twice as much.
type Index struct {
	items []indexItem
}

// NewIndex builds an index over paths.
func NewIndex(paths []string) (*Index, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no paths", ErrIndexUnavailable)
	}
	if len(paths) > MaxIndexSize {
		return nil, fmt.Errorf("%w: %d paths exceeds limit of %d", ErrIndexUnavailable, len(paths), MaxIndexSize)
	}
	ix := &Index{items: make([]indexItem, 0, len(paths))}
	for _, p := range paths {
		ix.items = append(ix.items, indexItem{
			path: p,
			full: strings.ToLower(p),
			name: strings.ToLower(path.Base(p)),
		})
	}
	return ix, nil
}

// Len returns the number of indexed paths.
func (ix *Index) Len() int {
	return len(ix.items)
}

// Best returns the best scoring path for candidate. Ties go to the shorter
// path, then to the lexically smaller one.
func (ix *Index) Best(candidate string) (string, float64, bool) {
	results := ix.Search(candidate, 1)
	if len(results) == 0 {
		return "", 0, false
	}
	return results[0].Path, results[0].Score, true
}

// Scored is a path with its fuzzy score.
type Scored struct {
	Path  string
	Score float64
}

// Search returns up to limit paths ordered by score. A limit of zero or
// less returns every path.
func (ix *Index) Search(query string, limit int) []Scored {
	if ix == nil {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	qName := path.Base(q)

	out := make([]Scored, 0, len(ix.items))
	for _, it := range ix.items {
		out = append(out, Scored{Path: it.path, Score: score(q, qName, it)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if len(a.Path) != len(b.Path) {
			return len(a.Path) < len(b.Path)
		}
		return a.Path < b.Path
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// score combines both fields as a weighted geometric mean, so a perfect
// hit on either field dominates. The full path is searched for the
// candidate anywhere inside it; the file name is compared whole.
func score(q, qName string, it indexItem) float64 {
	full := fieldScore(q, it.full)
	name := nameScore(qName, it.name)
	total := fullWeight + nameWeight
	return math.Pow(full, fullWeight/total) * math.Pow(name, nameWeight/total)
}

// fieldScore is the approximate substring edit distance of pattern inside
// text, normalized by the pattern length and capped at 1.
func fieldScore(pattern, text string) float64 {
	p := []rune(pattern)
	if len(p) == 0 {
		return 1
	}
	d := substringDistance(p, []rune(text))
	s := float64(d) / float64(len(p))
	if s > 1 {
		return 1
	}
	return s
}

// nameScore is the edit distance between two file names, normalized by
// the candidate's length and capped at 1.
func nameScore(candidate, name string) float64 {
	n := len([]rune(candidate))
	if n == 0 {
		return 1
	}
	return math.Min(1, float64(fuzzy.LevenshteinDistance(candidate, name))/float64(n))
}

// substringDistance is the minimum number of edits turning pattern into any
// substring of text.
func substringDistance(pattern, text []rune) int {
	prev := make([]int, len(pattern)+1)
	cur := make([]int, len(pattern)+1)
	for i := range prev {
		prev[i] = i
	}
	best := prev[len(pattern)]
	for j := 1; j <= len(text); j++ {
		cur[0] = 0
		for i := 1; i <= len(pattern); i++ {
			cost := 1
			if pattern[i-1] == text[j-1] {
				cost = 0
			}
			cur[i] = min(prev[i-1]+cost, prev[i]+1, cur[i-1]+1)
		}
		if cur[len(pattern)] < best {
			best = cur[len(pattern)]
		}
		prev, cur = cur, prev
	}
	return best
}

// MatchCandidate resolves candidate against the catalog: exact path first,
// then a case-insensitive path, then the fuzzy index if one is given.
func MatchCandidate(candidate string, cat *catalog.Catalog, idx *Index) (Match, bool) {
	if candidate == "" || cat == nil {
		return Match{}, false
	}
	if cat.Has(candidate) {
		return Match{Candidate: candidate, Path: candidate, Kind: Exact}, true
	}
	if p, ok := cat.LookupFold(candidate); ok {
		return Match{Candidate: candidate, Path: p, Kind: CaseInsensitive}, true
	}
	if idx == nil {
		return Match{}, false
	}
	p, s, ok := idx.Best(candidate)
	if !ok || s >= Threshold {
		return Match{}, false
	}
	return Match{Candidate: candidate, Path: p, Kind: Fuzzy, Score: s}, true
}

// FuzzyMatch pairs a candidate with the path it fuzzily resolved to.
type FuzzyMatch struct {
	Original string
	Matched  string
	Score    float64
}

// Categories splits candidates by how they resolved. Exact holds both exact
// and case-insensitive hits.
type Categories struct {
	Exact     []string
	Fuzzy     []FuzzyMatch
	Unmatched []string
}

// Mentioned returns the deduplicated set of resolved paths in resolution
// order.
func (c Categories) Mentioned() []string {
	seen := make(map[string]bool, len(c.Exact)+len(c.Fuzzy))
	var out []string
	for _, p := range c.Exact {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, f := range c.Fuzzy {
		if !seen[f.Matched] {
			seen[f.Matched] = true
			out = append(out, f.Matched)
		}
	}
	return out
}

// Categorize resolves every candidate.
func Categorize(candidates []string, cat *catalog.Catalog, idx *Index) Categories {
	var c Categories
	for _, cand := range candidates {
		m, ok := MatchCandidate(cand, cat, idx)
		switch {
		case !ok:
			c.Unmatched = append(c.Unmatched, cand)
		case m.Kind == Fuzzy:
			c.Fuzzy = append(c.Fuzzy, FuzzyMatch{Original: cand, Matched: m.Path, Score: m.Score})
		default:
			c.Exact = append(c.Exact, m.Path)
		}
	}
	return c
}
