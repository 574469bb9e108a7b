// Package staleness flags loaded files whose source changed after loading.
package staleness

import (
	"context"
	"sync"
	"time"

	"github.com/agusx1211/contextpack/internal/logging"
	"github.com/agusx1211/contextpack/internal/metrics"
	"github.com/agusx1211/contextpack/internal/selection"
)

// DefaultInterval is the polling period of a Monitor.
const DefaultInterval = 5 * time.Second

// ModTimes reports the current modification time of a path.
type ModTimes interface {
	ModTime(path string) (time.Time, bool)
}

// Scan compares every loaded, not yet stale entry with the current
// modification time of its file and flags those that are newer. It returns
// the newly flagged paths.
func Scan(store *selection.Store, src ModTimes) []string {
	if store == nil || src == nil {
		return nil
	}
	var flagged []string
	for _, e := range store.Entries() {
		if e.State != selection.Loaded || e.Stale {
			continue
		}
		mt, ok := src.ModTime(e.Path)
		if !ok || !mt.After(e.SourceMTime) {
			continue
		}
		if store.MarkStale(e.Path) {
			flagged = append(flagged, e.Path)
		}
	}
	if len(flagged) > 0 {
		metrics.RecordStale(len(flagged))
		logging.Named("staleness").Debug("entries flagged stale", logging.Strings("paths", flagged))
	}
	return flagged
}

// Monitor runs a pass on a fixed interval and on demand. Passes are handed
// to post so they run on the context that owns the selection.
type Monitor struct {
	interval time.Duration
	post     func(fn func())
	pass     func()
	trigger  chan struct{}
	stop     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// NewMonitor returns a monitor that posts pass every interval.
func NewMonitor(interval time.Duration, post func(fn func()), pass func()) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		interval: interval,
		post:     post,
		pass:     pass,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Start launches the polling loop. It ends when ctx is done or Stop is
// called.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

// Trigger requests an immediate pass. Requests made while one is already
// queued are merged.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Stop ends the polling loop and waits for it.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.post(m.pass)
		case <-m.trigger:
			m.post(m.pass)
		}
	}
}
