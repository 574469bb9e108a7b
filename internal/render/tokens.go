package render

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/agusx1211/contextpack/internal/logging"
	"github.com/agusx1211/contextpack/internal/selection"
)

// DefaultModel is the tokenizer model used for statistics.
const DefaultModel = "gpt-4o"

// TokenCounter counts tokens in text.
type TokenCounter interface {
	Count(text string) int
}

// EstimateCounter approximates one token per four characters.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

// TiktokenCounter counts tokens with a real BPE tokenizer.
type TiktokenCounter struct {
	tkm *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the tokenizer for model.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer for model %q: %w", model, err)
	}
	return &TiktokenCounter{tkm: tkm}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.tkm.Encode(text, nil, nil))
}

// CounterFor returns a tiktoken counter for model, or the estimate when the
// tokenizer cannot be loaded.
func CounterFor(model string) TokenCounter {
	c, err := NewTiktokenCounter(model)
	if err != nil {
		logging.Named("render").Warn("falling back to estimated token counts", logging.Err(err))
		return EstimateCounter{}
	}
	return c
}

// FileStat is the token weight of one selected file.
type FileStat struct {
	Path    string
	Tokens  int
	Pending bool
}

// Stats describes a rendered payload.
type Stats struct {
	Chars        int
	Tokens       int
	PromptTokens int
	Loaded       int
	Pending      int
	Files        []FileStat
}

// ComputeStats counts the payload and every entry. Pending entries are
// estimated from their size since their content is unknown.
func ComputeStats(payload, prompt string, entries []selection.Entry, counter TokenCounter) Stats {
	if counter == nil {
		counter = EstimateCounter{}
	}
	s := Stats{
		Chars:        len([]rune(payload)),
		Tokens:       counter.Count(payload),
		PromptTokens: counter.Count(prompt),
	}
	for _, e := range entries {
		if e.State == selection.Loaded {
			s.Loaded++
			s.Files = append(s.Files, FileStat{Path: e.Path, Tokens: counter.Count(e.Content)})
			continue
		}
		s.Pending++
		s.Files = append(s.Files, FileStat{Path: e.Path, Tokens: int((e.Size + 3) / 4), Pending: true})
	}
	return s
}

// Report renders the statistics as plain text with the heaviest files and
// directories first.
func (s Stats) Report(limit int) string {
	if limit <= 0 {
		limit = 20
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d tokens, %d chars\n", s.Tokens, s.Chars)
	fmt.Fprintf(&b, "prompt tokens: %d\n", s.PromptTokens)
	fmt.Fprintf(&b, "files: %d loaded, %d pending\n", s.Loaded, s.Pending)
	if len(s.Files) == 0 {
		return b.String()
	}

	fileTotal := 0
	dirTokens := make(map[string]int)
	dirFiles := make(map[string]int)
	for _, f := range s.Files {
		fileTotal += f.Tokens
		for dir := path.Dir(f.Path); dir != "." && dir != "/"; dir = path.Dir(dir) {
			dirTokens[dir] += f.Tokens
			dirFiles[dir]++
		}
	}

	files := append([]FileStat(nil), s.Files...)
	sort.Slice(files, func(i, j int) bool {
		if files[i].Tokens == files[j].Tokens {
			return files[i].Path < files[j].Path
		}
		return files[i].Tokens > files[j].Tokens
	})

	fmt.Fprintf(&b, "\ntop files:\n")
	for i, f := range files {
		if i == limit {
			fmt.Fprintf(&b, "...\n")
			break
		}
		suffix := ""
		if f.Pending {
			suffix = ", est."
		}
		fmt.Fprintf(&b, "%d\t%s\t(%s%s)\n", f.Tokens, f.Path, formatPercent(f.Tokens, fileTotal), suffix)
	}

	if len(dirTokens) == 0 {
		return b.String()
	}
	dirs := make([]string, 0, len(dirTokens))
	for d := range dirTokens {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		if dirTokens[dirs[i]] == dirTokens[dirs[j]] {
			return dirs[i] < dirs[j]
		}
		return dirTokens[dirs[i]] > dirTokens[dirs[j]]
	})
	fmt.Fprintf(&b, "\ntop directories (subtree):\n")
	for i, d := range dirs {
		if i == limit {
			fmt.Fprintf(&b, "...\n")
			break
		}
		fmt.Fprintf(&b, "%d\t%s/\t(%s, %d files)\n", dirTokens[d], d, formatPercent(dirTokens[d], fileTotal), dirFiles[d])
	}
	return b.String()
}

func formatPercent(part, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(total))
}
