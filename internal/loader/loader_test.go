package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"go.uber.org/goleak"

	"github.com/agusx1211/contextpack/internal/catalog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type failingHandle struct{}

func (failingHandle) Read() ([]byte, error)      { return nil, errors.New("permission denied") }
func (failingHandle) Stat() (fs.FileInfo, error) { return nil, errors.New("permission denied") }

type panickingHandle struct{}

func (panickingHandle) Read() ([]byte, error)      { panic("boom") }
func (panickingHandle) Stat() (fs.FileInfo, error) { return nil, nil }

type gatedHandle struct {
	gate chan struct{}
	data string
}

func (h gatedHandle) Read() ([]byte, error) {
	<-h.gate
	return []byte(h.data), nil
}

func (h gatedHandle) Stat() (fs.FileInfo, error) { return nil, errors.New("no stat") }

func startLoader(t *testing.T, concurrency int) *Loader {
	t.Helper()
	l := New(concurrency)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	t.Cleanup(func() {
		cancel()
		l.Close()
	})
	return l
}

func next(t *testing.T, l *Loader) Response {
	t.Helper()
	select {
	case resp := <-l.Responses():
		return resp
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a response")
		return nil
	}
}

func TestSingleRead(t *testing.T) {
	mod := time.Unix(1000, 0)
	fsys := fstest.MapFS{"src/a.go": {Data: []byte("package a\n"), ModTime: mod}}
	l := startLoader(t, 0)

	if err := l.Submit(context.Background(), Read{Handle: catalog.FSHandle(fsys, "src/a.go"), Path: "src/a.go", ID: "r1"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	fc, ok := next(t, l).(FileContent)
	if !ok {
		t.Fatalf("expected FileContent")
	}
	if fc.ID != "r1" || fc.Path != "src/a.go" || fc.Text != "package a\n" {
		t.Fatalf("unexpected content %+v", fc)
	}
	if fc.Metadata.Name != "a.go" || fc.Metadata.Size != 10 || !fc.Metadata.ModTime.Equal(mod) {
		t.Fatalf("unexpected metadata %+v", fc.Metadata)
	}
}

// racingHandle bumps its modification time during Read, as a write landing
// between the stat and the read would.
type racingHandle struct {
	mu   sync.Mutex
	mod  time.Time
	next time.Time
}

func (h *racingHandle) Read() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mod = h.next
	return []byte("old content"), nil
}

func (h *racingHandle) Stat() (fs.FileInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fstest.MapFS{"f": {ModTime: h.mod}}.Stat("f")
}

func TestReadRecordsModTimeBeforeContent(t *testing.T) {
	before, after := time.Unix(100, 0), time.Unix(200, 0)
	h := &racingHandle{mod: before, next: after}
	l := startLoader(t, 0)

	if err := l.Submit(context.Background(), Read{Handle: h, Path: "a.txt", ID: "r1"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	fc, ok := next(t, l).(FileContent)
	if !ok {
		t.Fatalf("expected FileContent")
	}
	if !fc.Metadata.ModTime.Equal(before) {
		t.Fatalf("expected the mtime seen before reading (%v), got %v", before, fc.Metadata.ModTime)
	}
}

func TestSingleReadErrors(t *testing.T) {
	l := startLoader(t, 0)
	cases := []Read{
		{Handle: failingHandle{}, Path: "denied.txt", ID: "e1"},
		{Handle: panickingHandle{}, Path: "panic.txt", ID: "e2"},
		{Handle: nil, Path: "nil.txt", ID: "e3"},
		{Handle: catalog.FSHandle(fstest.MapFS{"b.bin": {Data: []byte{0x00, 0x01, 0x02, 0xff}}}, "b.bin"), Path: "b.bin", ID: "e4"},
	}
	for _, req := range cases {
		if err := l.Submit(context.Background(), req); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		resp, ok := next(t, l).(Error)
		if !ok {
			t.Fatalf("expected Error for %s", req.Path)
		}
		if resp.ID != req.ID || resp.Path != req.Path || resp.Message == "" {
			t.Fatalf("unexpected error response %+v", resp)
		}
	}
}

func TestBatchAccountsForEveryFile(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{0, 0}, {1, 1}, {10, 0}, {23, 7}, {25, 25}} {
		t.Run(fmt.Sprintf("n=%d,k=%d", tc.n, tc.k), func(t *testing.T) {
			fsys := fstest.MapFS{}
			files := make([]BatchFile, 0, tc.n)
			failed := map[string]bool{}
			for i := 0; i < tc.n; i++ {
				p := fmt.Sprintf("f%02d.txt", i)
				if i < tc.k {
					files = append(files, BatchFile{Handle: failingHandle{}, Path: p})
					failed[p] = true
					continue
				}
				fsys[p] = &fstest.MapFile{Data: []byte("content " + p)}
				files = append(files, BatchFile{Handle: catalog.FSHandle(fsys, p), Path: p})
			}

			l := startLoader(t, 10)
			if err := l.Submit(context.Background(), ReadBatch{Files: files, BatchID: "batch_1"}); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}

			var progress []BatchProgress
			var complete BatchComplete
		loop:
			for {
				switch v := next(t, l).(type) {
				case BatchProgress:
					progress = append(progress, v)
				case BatchComplete:
					complete = v
					break loop
				default:
					t.Fatalf("unexpected response %T", v)
				}
			}

			wantSlices := (tc.n + 9) / 10
			if len(progress) != wantSlices {
				t.Fatalf("got %d progress messages, want %d", len(progress), wantSlices)
			}
			for i, p := range progress {
				want := (i + 1) * 10
				if want > tc.n {
					want = tc.n
				}
				if p.Processed != want || p.Total != tc.n || p.BatchID != "batch_1" {
					t.Fatalf("unexpected progress %+v", p)
				}
			}
			if complete.BatchID != "batch_1" {
				t.Fatalf("unexpected batch id %q", complete.BatchID)
			}
			if got := len(complete.Results) + len(complete.Errors); got != tc.n {
				t.Fatalf("results+errors = %d, want %d", got, tc.n)
			}
			if len(complete.Errors) != tc.k {
				t.Fatalf("got %d errors, want %d", len(complete.Errors), tc.k)
			}
			for _, r := range complete.Results {
				if failed[r.Path] {
					t.Fatalf("results contain failed path %s", r.Path)
				}
			}
		})
	}
}

func TestBatchSlicesRunInOrder(t *testing.T) {
	fsys := fstest.MapFS{}
	var files []BatchFile
	for i := 0; i < 5; i++ {
		p := fmt.Sprintf("%d.txt", i)
		fsys[p] = &fstest.MapFile{Data: []byte(p)}
		files = append(files, BatchFile{Handle: catalog.FSHandle(fsys, p), Path: p})
	}
	l := startLoader(t, 2)
	if err := l.Submit(context.Background(), ReadBatch{Files: files, BatchID: "b"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	for _, want := range []int{2, 4, 5} {
		p, ok := next(t, l).(BatchProgress)
		if !ok || p.Processed != want {
			t.Fatalf("expected progress %d, got %+v", want, p)
		}
	}
	complete, ok := next(t, l).(BatchComplete)
	if !ok {
		t.Fatalf("expected BatchComplete")
	}
	for i, r := range complete.Results {
		if r.Path != files[i].Path {
			t.Fatalf("results out of order at %d: %s", i, r.Path)
		}
	}
}

func TestSingleReadNotBlockedByBatch(t *testing.T) {
	gate := make(chan struct{})
	l := startLoader(t, 1)
	if err := l.Submit(context.Background(), ReadBatch{Files: []BatchFile{{Handle: gatedHandle{gate: gate, data: "slow"}, Path: "slow.txt"}}, BatchID: "b"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	fsys := fstest.MapFS{"fast.txt": {Data: []byte("fast")}}
	if err := l.Submit(context.Background(), Read{Handle: catalog.FSHandle(fsys, "fast.txt"), Path: "fast.txt", ID: "r"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if fc, ok := next(t, l).(FileContent); !ok || fc.Path != "fast.txt" {
		t.Fatalf("expected the single read to finish first")
	}
	close(gate)
	if _, ok := next(t, l).(BatchProgress); !ok {
		t.Fatalf("expected batch progress after releasing the gate")
	}
	if _, ok := next(t, l).(BatchComplete); !ok {
		t.Fatalf("expected batch completion")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	l := New(0)
	l.Start(context.Background())
	l.Close()
	if err := l.Submit(context.Background(), Read{Path: "a"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, ok := <-l.Responses(); ok {
		t.Fatalf("responses channel should be closed")
	}
	l.Close()
}

func TestCloseWithUndeliveredResults(t *testing.T) {
	gate := make(chan struct{})
	l := New(0)
	l.Start(context.Background())
	if err := l.Submit(context.Background(), Read{Handle: gatedHandle{gate: gate, data: "x"}, Path: "x", ID: "1"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	done := make(chan struct{})
	go func() {
		l.Close()
		close(done)
	}()
	close(gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Close did not return")
	}
}
