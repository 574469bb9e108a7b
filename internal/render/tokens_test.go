package render

import (
	"strings"
	"testing"

	"github.com/agusx1211/contextpack/internal/selection"
)

func TestEstimateCounter(t *testing.T) {
	cases := map[string]int{
		"":      0,
		"a":     1,
		"abcd":  1,
		"abcde": 2,
		"ééééé": 2,
	}
	for in, want := range cases {
		if got := (EstimateCounter{}).Count(in); got != want {
			t.Errorf("Count(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestComputeStats(t *testing.T) {
	entries := []selection.Entry{
		loaded("src/app/big.go", strings.Repeat("a", 400)),
		loaded("src/small.go", strings.Repeat("b", 40)),
		pending("docs/notes.md", 80),
	}
	payload := Render("prompt", entries, Preview, Options{})
	s := ComputeStats(payload, "prompt", entries, EstimateCounter{})

	if s.Loaded != 2 || s.Pending != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.PromptTokens != 2 {
		t.Fatalf("PromptTokens = %d", s.PromptTokens)
	}
	if s.Chars != len(payload) {
		t.Fatalf("Chars = %d, want %d", s.Chars, len(payload))
	}
	if s.Files[0].Tokens != 100 || s.Files[2].Tokens != 20 || !s.Files[2].Pending {
		t.Fatalf("unexpected file stats %+v", s.Files)
	}

	report := s.Report(0)
	for _, want := range []string{
		"files: 2 loaded, 1 pending",
		"100\tsrc/app/big.go\t(76.9%)",
		"20\tdocs/notes.md\t(15.4%, est.)",
		"110\tsrc/\t(84.6%, 2 files)",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestComputeStatsNilCounter(t *testing.T) {
	s := ComputeStats("abcdefgh", "", nil, nil)
	if s.Tokens != 2 {
		t.Fatalf("Tokens = %d, want 2", s.Tokens)
	}
	if got := s.Report(5); !strings.HasPrefix(got, "2 tokens, 8 chars\n") {
		t.Fatalf("unexpected report %q", got)
	}
}
