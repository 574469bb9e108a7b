// Package render turns the selection into the final textual payload.
package render

import (
	"fmt"
	"strings"

	"github.com/agusx1211/contextpack/internal/catalog"
	"github.com/agusx1211/contextpack/internal/selection"
)

// Mode selects how entries are rendered.
type Mode int

const (
	// Preview truncates content and shows placeholders for pending files.
	Preview Mode = iota
	// Export renders full content of loaded files only.
	Export
)

func (m Mode) String() string {
	if m == Export {
		return "export"
	}
	return "preview"
}

const (
	// DefaultPreviewBudget is the number of characters of each file shown
	// in preview mode.
	DefaultPreviewBudget = 1000

	// PendingMarker stands in for the content of files not loaded yet.
	PendingMarker = "[content not loaded]"
	// TruncatedMarker follows content cut short in preview mode.
	TruncatedMarker = "[content truncated]"

	filesOpen  = "<files>"
	filesClose = "</files>"
)

// Options tune rendering.
type Options struct {
	// PreviewBudget defaults to DefaultPreviewBudget.
	PreviewBudget int
	// Dedup replaces repeated content with a reference to the first file
	// that carried it.
	Dedup bool
}

// Render returns the prompt followed by a files section with one block per
// entry, in the order given.
func Render(prompt string, entries []selection.Entry, mode Mode, opts Options) string {
	budget := opts.PreviewBudget
	if budget <= 0 {
		budget = DefaultPreviewBudget
	}

	var files strings.Builder
	seen := make(map[uint64]selection.Entry)
	blocks := 0
	for _, e := range entries {
		if e.State != selection.Loaded {
			if mode == Export {
				continue
			}
			files.WriteString(fmt.Sprintf("\n- path: %s\n", e.Path))
			files.WriteString(fmt.Sprintf("- content: %s (%s)\n", PendingMarker, catalog.FormatBytes(e.Size)))
			blocks++
			continue
		}

		files.WriteString(fmt.Sprintf("\n- path: %s\n", e.Path))
		blocks++
		if opts.Dedup {
			if first, ok := seen[e.Hash]; ok && first.Content == e.Content {
				files.WriteString(fmt.Sprintf("- content: Contents are identical to %s\n", first.Path))
				continue
			}
			seen[e.Hash] = e
		}

		content := e.Content
		truncated := false
		if mode == Preview {
			content, truncated = Truncate(content, budget)
		}
		fence := fenceFor(content)
		files.WriteString(fmt.Sprintf("- content:\n%s\n%s\n%s\n", fence, content, fence))
		if truncated {
			files.WriteString(TruncatedMarker + "\n")
		}
	}

	var out strings.Builder
	if strings.TrimSpace(prompt) != "" {
		out.WriteString(prompt)
		if blocks > 0 {
			out.WriteString("\n\n")
		}
	}
	if blocks > 0 {
		out.WriteString(filesOpen + "\n")
		out.WriteString(files.String())
		out.WriteString(filesClose + "\n")
	}
	return out.String()
}

// fenceFor returns a backtick fence longer than any backtick run in
// content, and never shorter than three.
func fenceFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

// Truncate cuts content to budget characters. When a line break falls in
// the last fifth of the budget the cut happens there instead.
func Truncate(content string, budget int) (string, bool) {
	if budget <= 0 {
		return content, false
	}
	runes := []rune(content)
	if len(runes) <= budget {
		return content, false
	}
	cut := runes[:budget]
	for i := len(cut) - 1; i >= budget*8/10; i-- {
		if cut[i] == '\n' {
			cut = cut[:i]
			break
		}
	}
	return string(cut), true
}
