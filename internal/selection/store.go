// Package selection holds the set of selected files and their load state.
//
// A Store is not safe for concurrent use. It is owned by the interactive
// context, which serializes every mutation.
package selection

import (
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/agusx1211/contextpack/internal/catalog"
	"github.com/agusx1211/contextpack/internal/logging"
	"github.com/agusx1211/contextpack/internal/metrics"
)

// LoadState tells whether an entry's content has been materialized.
type LoadState int

const (
	Pending LoadState = iota
	Loaded
)

func (s LoadState) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "pending"
}

// Origin tells who asked for a selection.
type Origin int

const (
	Manual Origin = iota
	Auto
)

// Entry is one selected file.
type Entry struct {
	Path         string
	State        LoadState
	Content      string
	Hash         uint64
	Size         int64
	SourceMTime  time.Time
	Stale        bool
	AutoSelected bool
	Summarized   bool
}

// LoadRequester is asked to fetch content for entries created while lazy
// mode is off.
type LoadRequester interface {
	RequestLoad(path string)
}

// Hash returns the content hash stored on loaded entries.
func Hash(content string) uint64 {
	return xxhash.Sum64String(content)
}

// Store maps selected paths to entries and remembers insertion order.
type Store struct {
	entries   map[string]*Entry
	order     []string
	lazy      bool
	requester LoadRequester
}

// NewStore returns an empty store. requester may be nil, in which case
// entries simply stay Pending until something loads them.
func NewStore(lazy bool, requester LoadRequester) *Store {
	return &Store{
		entries:   make(map[string]*Entry),
		lazy:      lazy,
		requester: requester,
	}
}

// SetLazy toggles lazy mode for future selections.
func (s *Store) SetLazy(lazy bool) {
	s.lazy = lazy
}

// Lazy reports whether lazy mode is on.
func (s *Store) Lazy() bool {
	return s.lazy
}

// Select adds a Pending entry for rec. It returns false if the path was
// already selected; a manual selection of an existing entry still takes
// ownership of it away from detection.
func (s *Store) Select(rec catalog.FileRecord, origin Origin) bool {
	if e, ok := s.entries[rec.Path]; ok {
		if origin == Manual && e.AutoSelected {
			e.AutoSelected = false
			logging.Named("selection").Debug("auto selection claimed manually", logging.String("path", rec.Path))
		}
		return false
	}

	s.entries[rec.Path] = &Entry{
		Path:         rec.Path,
		State:        Pending,
		Size:         rec.Size,
		SourceMTime:  rec.ModTime,
		AutoSelected: origin == Auto,
	}
	s.order = append(s.order, rec.Path)
	metrics.SetSelectedFiles(len(s.entries))
	logging.Named("selection").Debug("selected",
		logging.String("path", rec.Path),
		logging.String("origin", originName(origin)),
	)

	if !s.lazy && s.requester != nil {
		s.requester.RequestLoad(rec.Path)
	}
	return true
}

// Deselect removes the entry for path regardless of its load state.
func (s *Store) Deselect(path string) bool {
	if _, ok := s.entries[path]; !ok {
		return false
	}
	delete(s.entries, path)
	for i, p := range s.order {
		if p == path {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	metrics.SetSelectedFiles(len(s.entries))
	logging.Named("selection").Debug("deselected", logging.String("path", path))
	return true
}

// MarkLoaded stores content for path. Results for paths that are no longer
// selected are dropped and MarkLoaded returns false. Loading an entry that
// is already Loaded replaces its content and clears the stale flag.
func (s *Store) MarkLoaded(path, content string, modTime time.Time) bool {
	e, ok := s.entries[path]
	if !ok {
		metrics.RecordDroppedResult()
		logging.Named("selection").Debug("dropped result for deselected path", logging.String("path", path))
		return false
	}
	e.State = Loaded
	e.Content = content
	e.Hash = Hash(content)
	e.Size = int64(len(content))
	e.SourceMTime = modTime
	e.Stale = false
	e.Summarized = false
	return true
}

// ReplaceContent swaps the content of a Loaded entry without touching its
// source time, used when content is rewritten rather than reread.
func (s *Store) ReplaceContent(path, content string) bool {
	e, ok := s.entries[path]
	if !ok || e.State != Loaded {
		return false
	}
	e.Content = content
	e.Hash = Hash(content)
	e.Summarized = true
	return true
}

// MarkStale flags a Loaded entry as older than its file on disk. It returns
// true only when the flag changed.
func (s *Store) MarkStale(path string) bool {
	e, ok := s.entries[path]
	if !ok || e.State != Loaded || e.Stale {
		return false
	}
	e.Stale = true
	return true
}

// Has reports whether path is selected.
func (s *Store) Has(path string) bool {
	_, ok := s.entries[path]
	return ok
}

// IsLoaded reports whether path is selected and Loaded.
func (s *Store) IsLoaded(path string) bool {
	e, ok := s.entries[path]
	return ok && e.State == Loaded
}

// Get returns a copy of the entry for path.
func (s *Store) Get(path string) (Entry, bool) {
	e, ok := s.entries[path]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// AllPaths returns every selected path in insertion order.
func (s *Store) AllPaths() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Entries returns copies of every entry in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, *s.entries[p])
	}
	return out
}

// AutoSelected returns the paths that detection owns, in insertion order.
func (s *Store) AutoSelected() []string {
	var out []string
	for _, p := range s.order {
		if s.entries[p].AutoSelected {
			out = append(out, p)
		}
	}
	return out
}

// Pending returns the paths that still wait for content.
func (s *Store) Pending() []string {
	return s.filter(func(e *Entry) bool { return e.State == Pending })
}

// Stale returns the paths flagged stale.
func (s *Store) Stale() []string {
	return s.filter(func(e *Entry) bool { return e.Stale })
}

// Clear removes every entry and returns how many were removed.
func (s *Store) Clear() int {
	n := len(s.entries)
	s.entries = make(map[string]*Entry)
	s.order = nil
	metrics.SetSelectedFiles(0)
	return n
}

func (s *Store) filter(keep func(*Entry) bool) []string {
	var out []string
	for _, p := range s.order {
		if keep(s.entries[p]) {
			out = append(out, p)
		}
	}
	return out
}

func originName(o Origin) string {
	if o == Auto {
		return "auto"
	}
	return "manual"
}
