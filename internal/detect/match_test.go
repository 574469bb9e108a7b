package detect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agusx1211/contextpack/internal/catalog"
)

func newCatalog(t *testing.T, paths ...string) *catalog.Catalog {
	t.Helper()
	entries := make([]catalog.Entry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, catalog.Entry{Path: p, Size: int64(len(p))})
	}
	cat, err := catalog.Scan("root", entries, nil)
	require.NoError(t, err)
	return cat
}

func newIndex(t *testing.T, cat *catalog.Catalog) *Index {
	t.Helper()
	idx, err := NewIndex(cat.Paths())
	require.NoError(t, err)
	return idx
}

func TestMatchPrefersExactOverCaseInsensitive(t *testing.T) {
	cat := newCatalog(t, "lib/util.py", "lib/Utils.py")
	m, ok := MatchCandidate("lib/util.py", cat, newIndex(t, cat))
	require.True(t, ok)
	require.Equal(t, Exact, m.Kind)
	require.Equal(t, "lib/util.py", m.Path)

	m, ok = MatchCandidate("LIB/UTILS.PY", cat, newIndex(t, cat))
	require.True(t, ok)
	require.Equal(t, CaseInsensitive, m.Kind)
	require.Equal(t, "lib/Utils.py", m.Path)
}

func TestFuzzyMatchThreshold(t *testing.T) {
	cat := newCatalog(t, "src/deep/nested/utilz.py", "README.md")
	idx := newIndex(t, cat)

	m, ok := MatchCandidate("utils.py", cat, idx)
	require.True(t, ok)
	require.Equal(t, Fuzzy, m.Kind)
	require.Equal(t, "src/deep/nested/utilz.py", m.Path)
	require.Less(t, m.Score, Threshold)

	m, ok = MatchCandidate("utxls.py", cat, idx)
	require.True(t, ok)
	require.Less(t, m.Score, Threshold)

	_, ok = MatchCandidate("xtxls.py", cat, idx)
	require.False(t, ok, "a score above the threshold must be unmatched")

	_, ok = MatchCandidate("utils.py", cat, nil)
	require.False(t, ok, "without an index only exact tiers apply")
}

func TestFuzzyScoreGrowsWithTypos(t *testing.T) {
	idx, err := NewIndex([]string{"src/deep/nested/utilz.py"})
	require.NoError(t, err)

	prev := -1.0
	for _, cand := range []string{"utilz.py", "utils.py", "utxls.py", "xtxls.py", "xxxxx.py"} {
		_, s, ok := idx.Best(cand)
		require.True(t, ok)
		require.GreaterOrEqual(t, s, prev, "score for %q", cand)
		prev = s
	}
	require.GreaterOrEqual(t, prev, Threshold)
}

func TestFuzzyFilenameOutweighsPath(t *testing.T) {
	idx, err := NewIndex([]string{"handlers/user.go", "user/handlers.go"})
	require.NoError(t, err)
	p, _, ok := idx.Best("handlers.go")
	require.True(t, ok)
	require.Equal(t, "user/handlers.go", p)
}

func TestFuzzyTieBreaksOnShorterPath(t *testing.T) {
	idx, err := NewIndex([]string{"a/b/c/main.go", "cmd/main.go", "x/main.go"})
	require.NoError(t, err)
	p, s, ok := idx.Best("main.go")
	require.True(t, ok)
	require.Zero(t, s)
	require.Equal(t, "x/main.go", p)
}

func TestNewIndexUnavailable(t *testing.T) {
	_, err := NewIndex(nil)
	require.True(t, errors.Is(err, ErrIndexUnavailable))

	big := make([]string, MaxIndexSize+1)
	for i := range big {
		big[i] = fmt.Sprintf("f%d.go", i)
	}
	_, err = NewIndex(big)
	require.True(t, errors.Is(err, ErrIndexUnavailable))
}

func TestCategorize(t *testing.T) {
	cat := newCatalog(t, "src/app/main.py", "config.json", "lib/Helper.go")
	cats := Categorize([]string{"src/app/main.py", "lib/helper.go", "confg.json", "nothing/here.rs"}, cat, newIndex(t, cat))

	require.Equal(t, []string{"src/app/main.py", "lib/Helper.go"}, cats.Exact)
	require.Len(t, cats.Fuzzy, 1)
	require.Equal(t, "confg.json", cats.Fuzzy[0].Original)
	require.Equal(t, "config.json", cats.Fuzzy[0].Matched)
	require.Equal(t, []string{"nothing/here.rs"}, cats.Unmatched)
	require.Equal(t, []string{"src/app/main.py", "lib/Helper.go", "config.json"}, cats.Mentioned())
}

func TestSubstringDistance(t *testing.T) {
	cases := []struct {
		pattern, text string
		want          int
	}{
		{"abc", "xxabcxx", 0},
		{"abc", "xxabxx", 1},
		{"abc", "", 3},
		{"", "abc", 0},
		{"kitten", "sitting", 2},
	}
	for _, tc := range cases {
		got := substringDistance([]rune(tc.pattern), []rune(tc.text))
		require.Equal(t, tc.want, got, "%q in %q", tc.pattern, tc.text)
	}
}

func TestNameScoreComparesWholeNames(t *testing.T) {
	require.Zero(t, nameScore("main.go", "main.go"))
	require.InDelta(t, 0.125, nameScore("utils.py", "utilz.py"), 1e-9)
	require.Equal(t, 1.0, nameScore("a.go", "completely_different.rs"))
	require.Equal(t, 1.0, nameScore("", "x"))
}
