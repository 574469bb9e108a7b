package loader

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agusx1211/contextpack/internal/catalog"
	"github.com/agusx1211/contextpack/internal/logging"
)

// Submitter accepts requests for the background context.
type Submitter interface {
	Submit(ctx context.Context, req Request) error
}

type pendingRead struct {
	path   string
	onDone func(FileContent)
	onErr  func(Error)
}

type pendingBatch struct {
	paths      map[string]bool
	onProgress func(BatchProgress)
	onComplete func(BatchComplete)
}

// Dispatcher keeps the callbacks of in-flight requests keyed by correlation
// id and routes responses to them. It is not safe for concurrent use; it
// belongs to the same context that owns the selection.
type Dispatcher struct {
	submitter Submitter
	reads     map[string]*pendingRead
	batches   map[string]*pendingBatch
}

// NewDispatcher returns a dispatcher that submits through s.
func NewDispatcher(s Submitter) *Dispatcher {
	return &Dispatcher{
		submitter: s,
		reads:     make(map[string]*pendingRead),
		batches:   make(map[string]*pendingBatch),
	}
}

// Read submits a single read and registers its callbacks. Either may be nil.
func (d *Dispatcher) Read(ctx context.Context, h catalog.Handle, path string, onDone func(FileContent), onErr func(Error)) (string, error) {
	id := uuid.NewString()
	d.reads[id] = &pendingRead{path: path, onDone: onDone, onErr: onErr}
	if err := d.submitter.Submit(ctx, Read{Handle: h, Path: path, ID: id}); err != nil {
		delete(d.reads, id)
		return "", fmt.Errorf("failed to submit read for %s: %w", path, err)
	}
	return id, nil
}

// ReadBatch submits a batch whose id starts with prefix.
func (d *Dispatcher) ReadBatch(ctx context.Context, prefix string, files []BatchFile, onProgress func(BatchProgress), onComplete func(BatchComplete)) (string, error) {
	id := prefix + "_" + uuid.NewString()
	paths := make(map[string]bool, len(files))
	for _, f := range files {
		paths[f.Path] = true
	}
	d.batches[id] = &pendingBatch{paths: paths, onProgress: onProgress, onComplete: onComplete}
	if err := d.submitter.Submit(ctx, ReadBatch{Files: files, BatchID: id}); err != nil {
		delete(d.batches, id)
		return "", fmt.Errorf("failed to submit batch %s: %w", id, err)
	}
	return id, nil
}

// Forget drops the callbacks registered for id.
func (d *Dispatcher) Forget(id string) {
	delete(d.reads, id)
	delete(d.batches, id)
}

// ForgetPath withdraws every in-flight intent to load path. Single reads are
// forgotten outright; batches keep running but will not report the path.
func (d *Dispatcher) ForgetPath(path string) int {
	n := 0
	for id, r := range d.reads {
		if r.path == path {
			delete(d.reads, id)
			n++
		}
	}
	for _, b := range d.batches {
		if b.paths[path] {
			delete(b.paths, path)
			n++
		}
	}
	return n
}

// InFlight returns the number of outstanding requests.
func (d *Dispatcher) InFlight() int {
	return len(d.reads) + len(d.batches)
}

// Dispatch routes a response to its callbacks. It returns false when no
// callback is registered for the response, e.g. because it was forgotten.
func (d *Dispatcher) Dispatch(resp Response) bool {
	switch r := resp.(type) {
	case FileContent:
		p, ok := d.reads[r.ID]
		if !ok {
			return false
		}
		delete(d.reads, r.ID)
		if p.onDone != nil {
			p.onDone(r)
		}
		return true
	case Error:
		p, ok := d.reads[r.ID]
		if !ok {
			return false
		}
		delete(d.reads, r.ID)
		if p.onErr != nil {
			p.onErr(r)
		}
		return true
	case BatchProgress:
		b, ok := d.batches[r.BatchID]
		if !ok {
			return false
		}
		if b.onProgress != nil {
			b.onProgress(r)
		}
		return true
	case BatchComplete:
		b, ok := d.batches[r.BatchID]
		if !ok {
			return false
		}
		delete(d.batches, r.BatchID)
		kept := BatchComplete{BatchID: r.BatchID}
		for _, fc := range r.Results {
			if b.paths[fc.Path] {
				kept.Results = append(kept.Results, fc)
			}
		}
		for _, e := range r.Errors {
			if b.paths[e.Path] {
				kept.Errors = append(kept.Errors, e)
			}
		}
		if dropped := len(r.Results) + len(r.Errors) - len(kept.Results) - len(kept.Errors); dropped > 0 {
			logging.Named("loader").Debug("batch results dropped for forgotten paths",
				logging.String("batch", r.BatchID),
				logging.Int("dropped", dropped),
			)
		}
		if b.onComplete != nil {
			b.onComplete(kept)
		}
		return true
	}
	return false
}
