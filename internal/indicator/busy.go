// Package indicator tracks whether any long-running work is in progress.
package indicator

import (
	"sync"
	"time"

	"github.com/agusx1211/contextpack/internal/logging"
)

// DefaultFailsafe is how long the indicator may stay on without any call
// to End before it clears itself.
const DefaultFailsafe = 10 * time.Second

// Busy is a reentrant busy flag. Overlapping Begin/End pairs share one
// indicator, which clears when the last one ends or when the failsafe
// fires, whichever comes first.
type Busy struct {
	mu       sync.Mutex
	count    int
	gen      uint64
	timer    *time.Timer
	failsafe time.Duration
	onChange func(busy bool)
}

// New returns an idle indicator. onChange is called outside the lock on
// every transition between idle and busy.
func New(failsafe time.Duration, onChange func(busy bool)) *Busy {
	if failsafe <= 0 {
		failsafe = DefaultFailsafe
	}
	return &Busy{failsafe: failsafe, onChange: onChange}
}

// Begin marks one more unit of work in progress.
func (b *Busy) Begin() {
	b.mu.Lock()
	b.count++
	turnedOn := b.count == 1
	b.gen++
	gen := b.gen
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.failsafe, func() { b.expire(gen) })
	b.mu.Unlock()

	if turnedOn {
		b.notify(true)
	}
}

// End marks one unit of work as finished. Extra calls are ignored.
func (b *Busy) End() {
	b.mu.Lock()
	if b.count == 0 {
		b.mu.Unlock()
		return
	}
	b.count--
	turnedOff := b.count == 0
	if turnedOff && b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if turnedOff {
		b.notify(false)
	}
}

// Active reports whether the indicator is on.
func (b *Busy) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count > 0
}

// Stop cancels the failsafe timer without notifying.
func (b *Busy) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
}

func (b *Busy) expire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || b.count == 0 {
		b.mu.Unlock()
		return
	}
	stuck := b.count
	b.count = 0
	b.timer = nil
	b.mu.Unlock()

	logging.Named("indicator").Warn("busy indicator failsafe fired", logging.Int("outstanding", stuck))
	b.notify(false)
}

func (b *Busy) notify(busy bool) {
	if b.onChange != nil {
		b.onChange(busy)
	}
}
