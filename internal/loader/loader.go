// Package loader reads file content off the interactive context.
//
// The background context shares no state with its callers. Requests go in
// through Submit and every outcome comes back as a message on Responses.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agusx1211/contextpack/internal/catalog"
	"github.com/agusx1211/contextpack/internal/logging"
	"github.com/agusx1211/contextpack/internal/metrics"
)

// DefaultConcurrency is the batch slice size.
const DefaultConcurrency = 10

// ErrClosed is returned by Submit once the loader has been closed.
var ErrClosed = errors.New("loader closed")

// Loader is the background read context.
type Loader struct {
	concurrency int
	requests    chan Request
	responses   chan Response
	done        chan struct{}
	closeOnce   sync.Once
	startOnce   sync.Once
	wg          sync.WaitGroup
}

// New returns a loader that reads batches concurrency files at a time.
func New(concurrency int) *Loader {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Loader{
		concurrency: concurrency,
		requests:    make(chan Request, 64),
		responses:   make(chan Response, 64),
		done:        make(chan struct{}),
	}
}

// Start launches the background context. It stops when ctx is cancelled or
// Close is called.
func (l *Loader) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.run(ctx)
	})
}

// Submit queues a request.
func (l *Loader) Submit(ctx context.Context, req Request) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.requests <- req:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Responses returns the channel every outcome is delivered on. It is closed
// by Close once all in-flight work has stopped.
func (l *Loader) Responses() <-chan Response {
	return l.responses
}

// Close stops the background context and waits for in-flight reads.
// Results that have not been delivered yet are discarded.
func (l *Loader) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
		close(l.responses)
	})
}

func (l *Loader) run(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case req := <-l.requests:
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				l.handle(ctx, req)
			}()
		}
	}
}

func (l *Loader) handle(ctx context.Context, req Request) {
	switch r := req.(type) {
	case Read:
		l.emit(ctx, readFile(r.Handle, r.Path, r.ID))
	case ReadBatch:
		l.readBatch(ctx, r)
	default:
		logging.Named("loader").Warn("unknown request", logging.String("type", fmt.Sprintf("%T", req)))
	}
}

func (l *Loader) readBatch(ctx context.Context, req ReadBatch) {
	log := logging.Named("loader")
	start := time.Now()
	total := len(req.Files)
	complete := BatchComplete{BatchID: req.BatchID}

	for from := 0; from < total; from += l.concurrency {
		to := from + l.concurrency
		if to > total {
			to = total
		}
		slice := req.Files[from:to]
		out := make([]Response, len(slice))

		var g errgroup.Group
		for i, f := range slice {
			g.Go(func() error {
				out[i] = readFile(f.Handle, f.Path, req.BatchID)
				return nil
			})
		}
		_ = g.Wait()

		for _, resp := range out {
			switch v := resp.(type) {
			case FileContent:
				complete.Results = append(complete.Results, v)
			case Error:
				complete.Errors = append(complete.Errors, v)
			}
		}

		log.Debug("batch progress",
			logging.String("batch", req.BatchID),
			logging.Int("processed", to),
			logging.Int("total", total),
		)
		if !l.emit(ctx, BatchProgress{BatchID: req.BatchID, Processed: to, Total: total}) {
			return
		}
	}

	metrics.ObserveBatch(time.Since(start))
	log.Debug("batch complete",
		logging.String("batch", req.BatchID),
		logging.Int("results", len(complete.Results)),
		logging.Int("errors", len(complete.Errors)),
		logging.Duration("elapsed", time.Since(start)),
	)
	l.emit(ctx, complete)
}

func (l *Loader) emit(ctx context.Context, resp Response) bool {
	select {
	case l.responses <- resp:
		return true
	case <-l.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func readFile(h catalog.Handle, p, id string) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordFileRead(false, 0)
			resp = Error{Path: p, ID: id, Message: fmt.Sprintf("panic while reading: %v", r)}
		}
	}()

	if h == nil {
		metrics.RecordFileRead(false, 0)
		return Error{Path: p, ID: id, Message: "no file handle"}
	}
	// Stat before Read: a write racing the read must leave an older mtime
	// so the entry is later flagged stale.
	var modTime time.Time
	if info, err := h.Stat(); err == nil && info != nil {
		modTime = info.ModTime()
	}
	data, err := h.Read()
	if err != nil {
		metrics.RecordFileRead(false, 0)
		return Error{Path: p, ID: id, Message: err.Error()}
	}
	if isBinary(data) {
		metrics.RecordFileRead(false, 0)
		return Error{Path: p, ID: id, Message: "binary file"}
	}

	meta := Metadata{Size: int64(len(data)), Name: path.Base(p), ModTime: modTime}
	metrics.RecordFileRead(true, len(data))
	return FileContent{Path: p, Text: string(data), ID: id, Metadata: meta}
}

// isBinary sniffs the head of the content and treats anything that is not
// a text type as binary.
func isBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	head := data
	if len(head) > 2048 {
		head = head[:2048]
	}
	return !strings.HasPrefix(http.DetectContentType(head), "text/")
}
