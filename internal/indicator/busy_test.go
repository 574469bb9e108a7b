package indicator

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type transitions struct {
	mu  sync.Mutex
	got []bool
}

func (tr *transitions) record(b bool) {
	tr.mu.Lock()
	tr.got = append(tr.got, b)
	tr.mu.Unlock()
}

func (tr *transitions) snapshot() []bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]bool(nil), tr.got...)
}

func TestOverlappingWorkSharesOneIndicator(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &transitions{}
	b := New(time.Minute, tr.record)
	defer b.Stop()

	b.Begin()
	b.Begin()
	b.End()
	if !b.Active() {
		t.Fatalf("indicator must stay on while work is outstanding")
	}
	b.End()
	if b.Active() {
		t.Fatalf("indicator must clear when the counter returns to zero")
	}
	b.End()

	got := tr.snapshot()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("unexpected transitions %v", got)
	}
}

func TestFailsafeClearsStuckIndicator(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &transitions{}
	b := New(20*time.Millisecond, tr.record)
	b.Begin()
	b.Begin()

	deadline := time.Now().Add(2 * time.Second)
	for len(tr.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.Active() {
		t.Fatalf("failsafe did not clear the indicator")
	}
	got := tr.snapshot()
	if len(got) != 2 || got[1] != false {
		t.Fatalf("unexpected transitions %v", got)
	}

	// Late End calls after the failsafe are ignored.
	b.End()
	b.End()
	if got := tr.snapshot(); len(got) != 2 {
		t.Fatalf("late End must not notify again, got %v", got)
	}
}
