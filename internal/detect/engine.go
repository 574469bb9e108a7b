package detect

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agusx1211/contextpack/internal/catalog"
	"github.com/agusx1211/contextpack/internal/indicator"
	"github.com/agusx1211/contextpack/internal/logging"
	"github.com/agusx1211/contextpack/internal/metrics"
)

// DefaultQuietPeriod is how long text must stay unchanged before it is
// reconciled.
const DefaultQuietPeriod = 500 * time.Millisecond

// Selector is the view of the selection the engine mutates.
type Selector interface {
	Has(path string) bool
	AutoSelected() []string
	SelectAuto(rec catalog.FileRecord) bool
	Deselect(path string) bool
}

// Options configure an Engine.
type Options struct {
	// QuietPeriod defaults to DefaultQuietPeriod.
	QuietPeriod time.Duration
	// Post runs fn on the context that owns the selection. Debounced
	// reconciles are always delivered through it.
	Post func(fn func())
	// Busy is raised for the duration of every reconcile. May be nil.
	Busy *indicator.Busy
	// OnResult is called after every reconcile. May be nil.
	OnResult func(Result)
}

// Result summarizes one reconcile pass.
type Result struct {
	Candidates      []string
	Mentioned       []string
	Added           []string
	Removed         []string
	Fuzzy           []FuzzyMatch
	Unmatched       []string
	AlreadySelected int
}

// Changed reports whether the pass mutated the selection.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Message renders the feedback line shown after a pass, or "" when there
// is nothing to say.
func (r Result) Message() string {
	var parts []string
	if n := len(r.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("Auto-selected %d %s", n, plural(n, "file", "files")))
	}
	if n := len(r.Unmatched); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s not found", n, plural(n, "path", "paths")))
	}
	if r.AlreadySelected > 0 {
		parts = append(parts, fmt.Sprintf("%d already selected", r.AlreadySelected))
	}
	return strings.Join(parts, ". ")
}

// Engine reconciles auto-selected files with the text that mentions them.
// Reconcile, SetCatalog and the selector are used from a single context;
// Notify and Stop may be called from anywhere.
type Engine struct {
	sel  Selector
	opts Options

	cat      *catalog.Catalog
	idx      *Index
	idxBuilt bool

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewEngine returns an engine that mutates sel.
func NewEngine(sel Selector, opts Options) *Engine {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.Post == nil {
		opts.Post = func(fn func()) { fn() }
	}
	return &Engine{sel: sel, opts: opts}
}

// SetCatalog replaces the catalog and drops the cached fuzzy index.
func (e *Engine) SetCatalog(cat *catalog.Catalog) {
	e.cat = cat
	e.idx = nil
	e.idxBuilt = false
}

// Index returns the fuzzy index for the current catalog, building it on
// first use. It returns nil when no index can be built.
func (e *Engine) Index() *Index {
	if e.cat == nil {
		return nil
	}
	if !e.idxBuilt {
		e.idxBuilt = true
		idx, err := NewIndex(e.cat.Paths())
		if err != nil {
			logging.Named("detect").Warn("fuzzy matching disabled", logging.Err(err))
		}
		e.idx = idx
	}
	return e.idx
}

// Notify schedules a reconcile of text once it has been quiet for the
// quiet period. Each call supersedes the previous pending one.
func (e *Engine) Notify(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	gen := e.gen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.opts.QuietPeriod, func() {
		if !e.current(gen) {
			return
		}
		e.opts.Post(func() {
			if e.current(gen) {
				e.Reconcile(text)
			}
		})
	})
}

// Stop cancels any pending reconcile.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.opts.Busy != nil {
		e.opts.Busy.Stop()
	}
}

func (e *Engine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen == e.gen
}

// Reconcile brings auto-selected files in line with the paths text
// mentions: auto-selected paths no longer mentioned are deselected, and
// mentioned paths not yet selected are selected as auto. Manual selections
// are never touched. Without a catalog it does nothing.
func (e *Engine) Reconcile(text string) Result {
	if e.cat == nil {
		return Result{}
	}
	if e.opts.Busy != nil {
		e.opts.Busy.Begin()
		defer e.opts.Busy.End()
	}
	log := logging.Named("detect")

	res := Result{Candidates: Extract(text)}
	var cats Categories
	if len(res.Candidates) > 0 {
		cats = Categorize(res.Candidates, e.cat, e.Index())
	}
	res.Mentioned = cats.Mentioned()
	res.Fuzzy = cats.Fuzzy
	res.Unmatched = cats.Unmatched

	mentioned := make(map[string]bool, len(res.Mentioned))
	for _, p := range res.Mentioned {
		mentioned[p] = true
	}

	for _, p := range e.sel.AutoSelected() {
		if mentioned[p] {
			continue
		}
		if e.sel.Deselect(p) {
			res.Removed = append(res.Removed, p)
		}
	}

	for _, p := range res.Mentioned {
		if e.sel.Has(p) {
			res.AlreadySelected++
			continue
		}
		rec, ok := e.cat.Get(p)
		if !ok {
			continue
		}
		if e.sel.SelectAuto(rec) {
			res.Added = append(res.Added, p)
		}
	}

	metrics.RecordReconcile(len(res.Added), len(res.Removed))
	log.Debug("reconciled",
		logging.Int("candidates", len(res.Candidates)),
		logging.Strings("added", res.Added),
		logging.Strings("removed", res.Removed),
		logging.Strings("unmatched", res.Unmatched),
	)
	if e.opts.OnResult != nil {
		e.opts.OnResult(res)
	}
	return res
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
