// Package session is the interactive context. A single task loop owns the
// selection, the catalog and the prompt; every mutation runs on it, and the
// background loader, debounce timers, the staleness monitor and remote calls
// only ever hand work back to it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/agusx1211/contextpack/internal/catalog"
	"github.com/agusx1211/contextpack/internal/config"
	"github.com/agusx1211/contextpack/internal/detect"
	"github.com/agusx1211/contextpack/internal/events"
	"github.com/agusx1211/contextpack/internal/indicator"
	"github.com/agusx1211/contextpack/internal/loader"
	"github.com/agusx1211/contextpack/internal/logging"
	"github.com/agusx1211/contextpack/internal/metrics"
	"github.com/agusx1211/contextpack/internal/remote"
	"github.com/agusx1211/contextpack/internal/render"
	"github.com/agusx1211/contextpack/internal/selection"
	"github.com/agusx1211/contextpack/internal/staleness"
)

var (
	// ErrNoCatalog is returned by operations that need an opened folder.
	ErrNoCatalog = errors.New("no folder opened")
	// ErrNotRunning is returned once the task loop has stopped.
	ErrNotRunning = errors.New("session is not running")
	// ErrNotSelected is returned for paths without a selection entry.
	ErrNotSelected = errors.New("file not selected")
	// ErrNotLoaded is returned for entries whose content is not loaded.
	ErrNotLoaded = errors.New("file content not loaded")
	// ErrNoService is returned when no remote service is configured.
	ErrNoService = errors.New("no service configured")
	// ErrEmptyInput is returned when prompt generation gets no text.
	ErrEmptyInput = errors.New("please enter some text first")
	// ErrUnknownPreset is returned for preset names that do not exist.
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrContentChanged is returned when content changed under a summary.
	ErrContentChanged = errors.New("content changed while summarizing")
)

// Options configure a Session.
type Options struct {
	// Config supplies ignore rules, presets and defaults. May be nil.
	Config *config.Config
	// Lazy overrides Config's lazy mode when set.
	Lazy *bool
	// Concurrency is the loader batch slice size.
	Concurrency int
	// QuietPeriod is the detection debounce.
	QuietPeriod time.Duration
	// StaleInterval enables periodic staleness passes when positive.
	StaleInterval time.Duration
	// Watch adds filesystem notifications to the staleness monitor for
	// folders opened from disk. Ignored without a StaleInterval.
	Watch bool
	// Remote is the summarize/generate client. May be nil.
	Remote *remote.Client
	// Render options used by Render and Export.
	Render render.Options
}

// Session is the interactive context.
type Session struct {
	opts Options

	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	loader  *loader.Loader
	disp    *loader.Dispatcher
	store   *selection.Store
	engine  *detect.Engine
	busy    *indicator.Busy
	bus     *events.Bus
	monitor *staleness.Monitor
	watcher *staleness.Watcher

	// Fields below belong to the task loop.
	loopCtx  context.Context
	cat      *catalog.Catalog
	prompt   string
	deferred *[]string
}

// New wires a session. Nothing runs until Run is called.
func New(opts Options) *Session {
	lazy := opts.Config.LazyMode()
	if opts.Lazy != nil {
		lazy = *opts.Lazy
	}
	s := &Session{
		opts:    opts,
		tasks:   make(chan func(), 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		loader:  loader.New(opts.Concurrency),
		bus:     events.NewBus(),
		loopCtx: context.Background(),
	}
	s.disp = loader.NewDispatcher(s.loader)
	s.store = selection.NewStore(lazy, requester{s})
	s.busy = indicator.New(indicator.DefaultFailsafe, func(busy bool) {
		s.bus.Publish(events.Event{Kind: events.KindBusy, Busy: busy})
	})
	s.engine = detect.NewEngine(selector{s}, detect.Options{
		QuietPeriod: opts.QuietPeriod,
		Post:        s.post,
		Busy:        s.busy,
		OnResult:    s.onDetection,
	})
	if opts.StaleInterval > 0 {
		s.monitor = staleness.NewMonitor(opts.StaleInterval, s.post, func() { s.scanStale() })
	}
	return s
}

// Run drives the task loop until ctx is done. It must be called once.
func (s *Session) Run(ctx context.Context) error {
	log := logging.Named("session")
	s.loopCtx = ctx
	s.loader.Start(ctx)
	if s.monitor != nil {
		s.monitor.Start(ctx)
	}
	log.Debug("session started")

	responses := s.loader.Responses()
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			log.Debug("session stopped")
			return ctx.Err()
		case task := <-s.tasks:
			task()
		case resp, ok := <-responses:
			if !ok {
				responses = nil
				continue
			}
			if !s.disp.Dispatch(resp) {
				metrics.RecordDroppedResult()
				log.Debug("dropped response without a pending request")
			}
		}
	}
}

func (s *Session) teardown() {
	close(s.quit)
	s.engine.Stop()
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			logging.Named("session").Warn("failed to close watcher", logging.Err(err))
		}
	}
	if s.monitor != nil {
		s.monitor.Stop()
	}
	s.loader.Close()
	close(s.done)
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Do runs fn on the task loop and waits for its result.
func (s *Session) Do(ctx context.Context, fn func() error) error {
	select {
	case <-s.quit:
		return ErrNotRunning
	default:
	}
	res := make(chan error, 1)
	task := func() { res <- fn() }
	select {
	case s.tasks <- task:
	case <-s.quit:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrNotRunning
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn on the task loop without waiting for it. Work posted after
// the loop stopped is dropped.
func (s *Session) post(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.quit:
	}
}

// Subscribe returns a channel of session events.
func (s *Session) Subscribe() chan events.Event {
	return s.bus.Subscribe()
}

// Unsubscribe closes a channel returned by Subscribe.
func (s *Session) Unsubscribe(ch chan events.Event) {
	s.bus.Unsubscribe(ch)
}

// Busy reports whether long-running work is in progress.
func (s *Session) Busy() bool {
	return s.busy.Active()
}

// toast notifies subscribers. The log line stays at debug since
// subscribers already show the message to the user.
func (s *Session) toast(msg string, isError bool) {
	logging.Named("session").Debug("notification", logging.String("message", msg), logging.Bool("error", isError))
	s.bus.Publish(events.Toast(msg, isError))
}

func (s *Session) publishSelection() {
	s.bus.Publish(events.Event{Kind: events.KindSelection, Paths: s.store.AllPaths(), Total: s.store.Len()})
}

// requester issues reads for selections made while lazy mode is off.
type requester struct{ s *Session }

func (r requester) RequestLoad(path string) {
	s := r.s
	if s.deferred != nil {
		*s.deferred = append(*s.deferred, path)
		return
	}
	var h catalog.Handle
	if s.cat != nil {
		if rec, ok := s.cat.Get(path); ok {
			h = rec.Handle
		}
	}
	onDone := func(fc loader.FileContent) {
		s.applyContent(fc)
		s.publishSelection()
	}
	onErr := func(e loader.Error) {
		s.applyError(e)
		s.publishSelection()
	}
	if _, err := s.disp.Read(s.loopCtx, h, path, onDone, onErr); err != nil {
		s.toast(err.Error(), true)
	}
}

// selector is the view of the selection handed to the detection engine.
type selector struct{ s *Session }

func (v selector) Has(path string) bool {
	return v.s.store.Has(path)
}

func (v selector) AutoSelected() []string {
	return v.s.store.AutoSelected()
}

func (v selector) SelectAuto(rec catalog.FileRecord) bool {
	return v.s.store.Select(rec, selection.Auto)
}

func (v selector) Deselect(path string) bool {
	return v.s.deselect(path)
}

func (s *Session) deselect(path string) bool {
	if n := s.disp.ForgetPath(path); n > 0 {
		logging.Named("session").Debug("withdrew in-flight loads", logging.String("path", path), logging.Int("requests", n))
	}
	return s.store.Deselect(path)
}

func (s *Session) applyContent(fc loader.FileContent) {
	mtime := fc.Metadata.ModTime
	if s.cat != nil {
		if rec, ok := s.cat.Get(fc.Path); ok && rec.ModTime.After(mtime) {
			mtime = rec.ModTime
		}
	}
	s.store.MarkLoaded(fc.Path, fc.Text, mtime)
}

// applyError reverts a Pending entry to "not selected". A Loaded entry
// keeps its previous content and flags.
func (s *Session) applyError(e loader.Error) {
	entry, ok := s.store.Get(e.Path)
	if !ok {
		return
	}
	if entry.State == selection.Pending {
		s.store.Deselect(e.Path)
	}
	s.toast(e.Error(), true)
}

func (s *Session) onDetection(res detect.Result) {
	if res.Changed() {
		s.publishSelection()
	}
	if msg := res.Message(); msg != "" {
		s.toast(msg, false)
	}
}
