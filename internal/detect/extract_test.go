package detect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractPathAndQuoted(t *testing.T) {
	got := Extract(`Please update src/app/main.py and also "config.json"`)
	require.Contains(t, got, "src/app/main.py")
	require.Contains(t, got, "config.json")
	require.NotContains(t, got, "main.py", "a name inside a longer path is not a separate candidate")
}

func TestExtractRules(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"multi segment", "look in pkg/server/http.go for it", []string{"pkg/server/http.go"}},
		{"bare name", "the handler in utils.py is broken", []string{"utils.py"}},
		{"bare name unknown extension", "notes.zzz is odd", nil},
		{"quoted with slash", "open 'docs/guide.rst' please", []string{"docs/guide.rst"}},
		{"quoted backtick", "edit `README.md` now", []string{"README.md"}},
		{"file prefix", "File: scripts/deploy", []string{"scripts/deploy"}},
		{"file prefix trailing punctuation", "file: Makefile.", []string{"Makefile"}},
		{"the X file", "check the Dockerfile.dev file", []string{"Dockerfile.dev"}},
		{"verb", "please refactor handler.rb", []string{"handler.rb"}},
		{"quoted windows separators", `open "src\win\main.c"`, []string{"src/win/main.c"}},
		{"leading dot slash", "update ./lib/a.ts", []string{"lib/a.ts"}},
		{"version numbers are ignored", "bumped to version 1.2 in the changelog", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Extract(tc.text)
			for _, w := range tc.want {
				require.Contains(t, got, w)
			}
			if tc.want == nil {
				require.Empty(t, got)
			}
		})
	}
}

func TestExtractDeduplicates(t *testing.T) {
	got := Extract("update a/b.go, then update a/b.go again and \"a/b.go\"")
	require.Equal(t, []string{"a/b.go"}, got)
}

func TestExtractEmpty(t *testing.T) {
	require.Empty(t, Extract(""))
	require.Empty(t, Extract("   \n\t"))
	require.Empty(t, Extract("nothing to see here"))
}
