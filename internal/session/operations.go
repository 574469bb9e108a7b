package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/agusx1211/contextpack/internal/catalog"
	"github.com/agusx1211/contextpack/internal/detect"
	"github.com/agusx1211/contextpack/internal/events"
	"github.com/agusx1211/contextpack/internal/loader"
	"github.com/agusx1211/contextpack/internal/logging"
	"github.com/agusx1211/contextpack/internal/render"
	"github.com/agusx1211/contextpack/internal/selection"
	"github.com/agusx1211/contextpack/internal/staleness"
)

// Open scans a folder on disk, honoring the configured ignore rules and the
// folder's .gitignore, and makes it the current catalog.
func (s *Session) Open(ctx context.Context, root string) (*catalog.Catalog, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	policy, err := catalog.NewIgnorePolicy(s.opts.Config.IgnoreRules())
	if err != nil {
		return nil, err
	}
	if err := policy.LoadGitIgnore(abs); err != nil {
		logging.Named("session").Warn("ignoring unreadable .gitignore", logging.Err(err))
	}
	return s.open(ctx, abs, os.DirFS(abs), policy, true)
}

// OpenFS makes the files of fsys the current catalog, under the display
// name root.
func (s *Session) OpenFS(ctx context.Context, root string, fsys fs.FS) (*catalog.Catalog, error) {
	policy, err := catalog.NewIgnorePolicy(s.opts.Config.IgnoreRules())
	if err != nil {
		return nil, err
	}
	return s.open(ctx, root, fsys, policy, false)
}

func (s *Session) open(ctx context.Context, root string, fsys fs.FS, policy *catalog.IgnorePolicy, onDisk bool) (*catalog.Catalog, error) {
	entries, err := catalog.Walk(fsys, policy)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Scan(root, entries, policy)
	if err != nil {
		if errors.Is(err, catalog.ErrNoFiles) {
			s.toast("No relevant files found after filtering ignore patterns", true)
		}
		return nil, err
	}

	err = s.Do(ctx, func() error {
		for _, p := range s.store.AllPaths() {
			s.disp.ForgetPath(p)
		}
		s.store.Clear()
		s.cat = cat
		s.engine.SetCatalog(cat)
		s.replaceWatcher(root, cat, onDisk)
		s.publishSelection()
		s.toast(fmt.Sprintf("Loaded %d files from %s", cat.Len(), root), false)
		if s.prompt != "" {
			s.engine.Reconcile(s.prompt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

func (s *Session) replaceWatcher(root string, cat *catalog.Catalog, onDisk bool) {
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			logging.Named("session").Warn("failed to close watcher", logging.Err(err))
		}
		s.watcher = nil
	}
	if !onDisk || !s.opts.Watch || s.monitor == nil {
		return
	}
	w, err := staleness.NewWatcher(root, cat.Paths(), func(string) { s.monitor.Trigger() })
	if err != nil {
		logging.Named("session").Warn("file watching disabled", logging.Err(err))
		return
	}
	s.watcher = w
}

// Catalog returns the current catalog, or nil.
func (s *Session) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	var cat *catalog.Catalog
	err := s.Do(ctx, func() error {
		cat = s.cat
		return nil
	})
	return cat, err
}

// SetLazy toggles lazy mode for future selections.
func (s *Session) SetLazy(ctx context.Context, lazy bool) error {
	return s.Do(ctx, func() error {
		s.store.SetLazy(lazy)
		return nil
	})
}

// Select manually selects a catalog path.
func (s *Session) Select(ctx context.Context, path string) error {
	return s.Do(ctx, func() error {
		rec, err := s.record(path)
		if err != nil {
			return err
		}
		s.store.Select(rec, selection.Manual)
		s.publishSelection()
		return nil
	})
}

// Deselect removes path from the selection and withdraws any in-flight
// load for it.
func (s *Session) Deselect(ctx context.Context, path string) error {
	return s.Do(ctx, func() error {
		if !s.deselect(path) {
			return fmt.Errorf("%w: %s", ErrNotSelected, path)
		}
		s.publishSelection()
		return nil
	})
}

// SelectAll selects every catalog file. It returns how many were added.
func (s *Session) SelectAll(ctx context.Context) (int, error) {
	return s.selectMany(ctx, "select_all", func(cat *catalog.Catalog) ([]string, error) {
		return cat.Paths(), nil
	})
}

// SelectDir selects every file below dir.
func (s *Session) SelectDir(ctx context.Context, dir string) (int, error) {
	return s.selectMany(ctx, "select_dir", func(cat *catalog.Catalog) ([]string, error) {
		paths := cat.Under(dir)
		if len(paths) == 0 {
			return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownPath, dir)
		}
		return paths, nil
	})
}

// SelectGlob selects every file matching any of the patterns.
func (s *Session) SelectGlob(ctx context.Context, patterns ...string) (int, error) {
	return s.selectMany(ctx, "select", func(cat *catalog.Catalog) ([]string, error) {
		var out []string
		for _, p := range cat.Paths() {
			if catalog.MatchAny(p, patterns) {
				out = append(out, p)
			}
		}
		return out, nil
	})
}

// ApplyPreset clears the selection and selects the files the preset
// matches.
func (s *Session) ApplyPreset(ctx context.Context, name string) (int, error) {
	preset, ok := s.opts.Config.Preset(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	var n int
	err := s.Do(ctx, func() error {
		if s.cat == nil {
			return ErrNoCatalog
		}
		s.clear()
		var paths []string
		for _, p := range s.cat.Paths() {
			if preset.Matches(p) {
				paths = append(paths, p)
			}
		}
		n = s.bulkSelect("preset", paths)
		if s.store.Lazy() || n == 0 {
			s.toast(fmt.Sprintf("Applied preset: %s (%d files)", name, n), false)
		} else {
			s.toast(fmt.Sprintf("Loading %d files for preset: %s", n, name), false)
		}
		return nil
	})
	return n, err
}

func (s *Session) selectMany(ctx context.Context, prefix string, pick func(*catalog.Catalog) ([]string, error)) (int, error) {
	var n int
	err := s.Do(ctx, func() error {
		if s.cat == nil {
			return ErrNoCatalog
		}
		paths, err := pick(s.cat)
		if err != nil {
			return err
		}
		n = s.bulkSelect(prefix, paths)
		return nil
	})
	return n, err
}

// bulkSelect selects paths manually. With lazy mode off, the reads are
// gathered into one batch instead of one request per file.
func (s *Session) bulkSelect(prefix string, paths []string) int {
	var queued []string
	s.deferred = &queued
	n := 0
	for _, p := range paths {
		rec, ok := s.cat.Get(p)
		if !ok {
			continue
		}
		if s.store.Select(rec, selection.Manual) {
			n++
		}
	}
	s.deferred = nil

	if len(queued) > 0 {
		if err := s.loadBatch(prefix, queued, nil); err != nil {
			s.toast(err.Error(), true)
		}
	}
	s.publishSelection()
	return n
}

// Clear empties the selection. It returns how many entries were removed.
func (s *Session) Clear(ctx context.Context) (int, error) {
	var n int
	err := s.Do(ctx, func() error {
		n = s.clear()
		s.publishSelection()
		return nil
	})
	return n, err
}

func (s *Session) clear() int {
	for _, p := range s.store.AllPaths() {
		s.disp.ForgetPath(p)
	}
	return s.store.Clear()
}

// Entries returns a snapshot of the selection in insertion order.
func (s *Session) Entries(ctx context.Context) ([]selection.Entry, error) {
	var out []selection.Entry
	err := s.Do(ctx, func() error {
		out = s.store.Entries()
		return nil
	})
	return out, err
}

// SetPrompt replaces the prompt text and schedules detection once the text
// has been quiet for the debounce period.
func (s *Session) SetPrompt(ctx context.Context, text string) error {
	return s.Do(ctx, func() error {
		s.setPrompt(text)
		s.engine.Notify(text)
		return nil
	})
}

func (s *Session) setPrompt(text string) {
	s.prompt = text
	s.bus.Publish(events.Event{Kind: events.KindPrompt, Prompt: text})
}

// Prompt returns the current prompt text.
func (s *Session) Prompt(ctx context.Context) (string, error) {
	var out string
	err := s.Do(ctx, func() error {
		out = s.prompt
		return nil
	})
	return out, err
}

// DetectNow reconciles the current prompt immediately.
func (s *Session) DetectNow(ctx context.Context) (detect.Result, error) {
	var res detect.Result
	err := s.Do(ctx, func() error {
		if s.cat == nil {
			return ErrNoCatalog
		}
		res = s.engine.Reconcile(s.prompt)
		return nil
	})
	return res, err
}

// Search runs a palette query over the catalog.
func (s *Session) Search(ctx context.Context, query string, limit int) ([]string, error) {
	cat, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, ErrNoCatalog
	}
	return detect.Search(cat, query, limit), nil
}

// Render formats the prompt and the selection.
func (s *Session) Render(ctx context.Context, mode render.Mode) (string, error) {
	var out string
	err := s.Do(ctx, func() error {
		out = render.Render(s.prompt, s.store.Entries(), mode, s.opts.Render)
		return nil
	})
	return out, err
}

// Export loads every Pending entry and renders the full payload.
func (s *Session) Export(ctx context.Context) (string, error) {
	if _, err := s.LoadPending(ctx); err != nil && !errors.Is(err, ErrNoCatalog) {
		return "", err
	}
	return s.Render(ctx, render.Export)
}

// Stats renders the full payload and counts its tokens.
func (s *Session) Stats(ctx context.Context, counter render.TokenCounter) (render.Stats, error) {
	var st render.Stats
	err := s.Do(ctx, func() error {
		entries := s.store.Entries()
		payload := render.Render(s.prompt, entries, render.Export, s.opts.Render)
		st = render.ComputeStats(payload, s.prompt, entries, counter)
		return nil
	})
	return st, err
}

// BatchReport summarizes a completed batch.
type BatchReport struct {
	Loaded int
	Failed []loader.Error
}

// LoadPending reads every Pending entry in one batch and waits for it.
func (s *Session) LoadPending(ctx context.Context) (BatchReport, error) {
	return s.runBatch(ctx, "load_all", func() []string {
		return s.store.Pending()
	}, func(n int) {
		s.toast(fmt.Sprintf("Loading %d pending files...", n), false)
	})
}

// RefreshAll rereads every selected file.
func (s *Session) RefreshAll(ctx context.Context) (BatchReport, error) {
	return s.runBatch(ctx, "refresh", func() []string {
		return s.store.AllPaths()
	}, func(n int) {
		s.toast(fmt.Sprintf("Refreshing %d files...", n), false)
	})
}

// RefreshStale rereads the entries flagged stale.
func (s *Session) RefreshStale(ctx context.Context) (BatchReport, error) {
	return s.runBatch(ctx, "stale", func() []string {
		return s.store.Stale()
	}, func(n int) {
		s.toast(fmt.Sprintf("Refreshing %d stale files...", n), false)
	})
}

// ScanStale flags loaded entries whose files changed since they were read.
func (s *Session) ScanStale(ctx context.Context) ([]string, error) {
	var out []string
	err := s.Do(ctx, func() error {
		if s.cat == nil {
			return ErrNoCatalog
		}
		out = s.scanStale()
		return nil
	})
	return out, err
}

func (s *Session) scanStale() []string {
	if s.cat == nil {
		return nil
	}
	flagged := staleness.Scan(s.store, s.cat)
	if len(flagged) > 0 {
		s.bus.Publish(events.Event{Kind: events.KindStale, Paths: flagged, Total: len(s.store.Stale())})
	}
	return flagged
}

func (s *Session) runBatch(ctx context.Context, prefix string, pick func() []string, announce func(n int)) (BatchReport, error) {
	doneCh := make(chan loader.BatchComplete, 1)
	err := s.Do(ctx, func() error {
		if s.cat == nil {
			return ErrNoCatalog
		}
		paths := pick()
		if len(paths) == 0 {
			doneCh <- loader.BatchComplete{}
			return nil
		}
		announce(len(paths))
		return s.loadBatch(prefix, paths, func(bc loader.BatchComplete) { doneCh <- bc })
	})
	if err != nil {
		return BatchReport{}, err
	}
	select {
	case bc := <-doneCh:
		return BatchReport{Loaded: len(bc.Results), Failed: bc.Errors}, nil
	case <-ctx.Done():
		return BatchReport{}, ctx.Err()
	case <-s.quit:
		return BatchReport{}, ErrNotRunning
	}
}

// loadBatch submits paths as one batch. All of its results are applied in
// a single task, so no observer sees a partially applied batch.
func (s *Session) loadBatch(prefix string, paths []string, after func(loader.BatchComplete)) error {
	files := make([]loader.BatchFile, 0, len(paths))
	for _, p := range paths {
		f := loader.BatchFile{Path: p}
		if rec, ok := s.cat.Get(p); ok {
			f.Handle = rec.Handle
		}
		files = append(files, f)
	}

	onProgress := func(p loader.BatchProgress) {
		s.bus.Publish(events.Event{Kind: events.KindProgress, Message: prefix, Processed: p.Processed, Total: p.Total})
	}
	onComplete := func(bc loader.BatchComplete) {
		s.busy.End()
		for _, fc := range bc.Results {
			s.applyContent(fc)
		}
		for _, e := range bc.Errors {
			s.applyError(e)
		}
		s.publishSelection()
		if after != nil {
			after(bc)
		}
	}

	s.busy.Begin()
	if _, err := s.disp.ReadBatch(s.loopCtx, prefix, files, onProgress, onComplete); err != nil {
		s.busy.End()
		return err
	}
	return nil
}

func (s *Session) record(path string) (catalog.FileRecord, error) {
	if s.cat == nil {
		return catalog.FileRecord{}, ErrNoCatalog
	}
	rec, ok := s.cat.Get(path)
	if !ok {
		return catalog.FileRecord{}, fmt.Errorf("%w: %s", catalog.ErrUnknownPath, path)
	}
	return rec, nil
}
