package staleness

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/agusx1211/contextpack/internal/catalog"
	"github.com/agusx1211/contextpack/internal/selection"
)

type fakeTimes map[string]time.Time

func (f fakeTimes) ModTime(p string) (time.Time, bool) {
	t, ok := f[p]
	return t, ok
}

func TestScanFlagsOnlyNewerLoadedEntries(t *testing.T) {
	store := selection.NewStore(true, nil)
	for _, p := range []string{"changed.go", "same.go", "pending.go", "gone.go"} {
		store.Select(catalog.FileRecord{Path: p}, selection.Manual)
	}
	loadedAt := time.Unix(100, 0)
	store.MarkLoaded("changed.go", "a", loadedAt)
	store.MarkLoaded("same.go", "b", loadedAt)
	store.MarkLoaded("gone.go", "c", loadedAt)

	times := fakeTimes{
		"changed.go": time.Unix(200, 0),
		"same.go":    loadedAt,
		"pending.go": time.Unix(300, 0),
	}

	got := Scan(store, times)
	if diff := cmp.Diff([]string{"changed.go"}, got); diff != "" {
		t.Fatalf("Scan mismatch (-want +got):\n%s", diff)
	}
	if got := Scan(store, times); len(got) != 0 {
		t.Fatalf("second pass must not re-flag, got %v", got)
	}
	if diff := cmp.Diff([]string{"changed.go"}, store.Stale()); diff != "" {
		t.Fatalf("Stale mismatch (-want +got):\n%s", diff)
	}

	store.MarkLoaded("changed.go", "a2", time.Unix(200, 0))
	if len(store.Stale()) != 0 {
		t.Fatalf("reload must clear the stale flag")
	}
	if got := Scan(store, times); len(got) != 0 {
		t.Fatalf("refreshed entry must not be flagged again, got %v", got)
	}
}

func TestScanNil(t *testing.T) {
	if Scan(nil, fakeTimes{}) != nil || Scan(selection.NewStore(true, nil), nil) != nil {
		t.Fatalf("nil inputs should yield nothing")
	}
}

func TestMonitorPostsPasses(t *testing.T) {
	defer goleak.VerifyNone(t)

	var passes atomic.Int32
	posted := make(chan func(), 16)
	m := NewMonitor(20*time.Millisecond, func(fn func()) { posted <- fn }, func() { passes.Add(1) })
	m.Start(context.Background())

	for i := 0; i < 2; i++ {
		select {
		case fn := <-posted:
			fn()
		case <-time.After(5 * time.Second):
			t.Fatalf("monitor did not post a pass")
		}
	}
	m.Stop()
	m.Stop()
	if passes.Load() != 2 {
		t.Fatalf("passes = %d, want 2", passes.Load())
	}
}

func TestMonitorTrigger(t *testing.T) {
	defer goleak.VerifyNone(t)

	posted := make(chan func(), 16)
	m := NewMonitor(time.Hour, func(fn func()) { posted <- fn }, func() {})
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	m.Trigger()
	select {
	case <-posted:
	case <-time.After(5 * time.Second):
		t.Fatalf("trigger did not post a pass")
	}
	cancel()
	m.Stop()
}

func TestWatcherReportsWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	target := filepath.Join(root, "src", "a.go")
	if err := os.WriteFile(target, []byte("package a\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	changes := make(chan string, 16)
	w, err := NewWatcher(root, []string{"src/a.go"}, func(rel string) { changes <- rel })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(target, []byte("package a // edited\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case rel := <-changes:
			if rel == "src/a.go" {
				return
			}
		case <-deadline:
			t.Fatalf("no change event for src/a.go")
		}
	}
}

func TestWatchDirs(t *testing.T) {
	got := watchDirs([]string{"a.go", "src/b.go", "src/c.go", "src/x/d.go"})
	if diff := cmp.Diff([]string{".", "src", "src/x"}, got); diff != "" {
		t.Fatalf("watchDirs mismatch (-want +got):\n%s", diff)
	}
}
