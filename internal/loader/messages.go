package loader

import (
	"fmt"
	"time"

	"github.com/agusx1211/contextpack/internal/catalog"
)

// Request is a message sent to the background context.
type Request interface {
	isRequest()
}

// Response is a message sent back from the background context.
type Response interface {
	isResponse()
}

// Read asks for the content of one file.
type Read struct {
	Handle catalog.Handle
	Path   string
	ID     string
}

// BatchFile is one file of a ReadBatch.
type BatchFile struct {
	Handle catalog.Handle
	Path   string
}

// ReadBatch asks for many files, processed in fixed-size slices.
type ReadBatch struct {
	Files   []BatchFile
	BatchID string
}

func (Read) isRequest()      {}
func (ReadBatch) isRequest() {}

// Metadata describes the file a FileContent came from.
type Metadata struct {
	Size    int64
	ModTime time.Time
	Name    string
}

// FileContent is a successful read.
type FileContent struct {
	Path     string
	Text     string
	ID       string
	Metadata Metadata
}

// Error is a failed read. It never aborts sibling reads.
type Error struct {
	Path    string
	ID      string
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("failed to read %s: %s", e.Path, e.Message)
}

// BatchProgress is emitted after every slice of a batch.
type BatchProgress struct {
	BatchID   string
	Processed int
	Total     int
}

// BatchComplete is emitted once per batch after its last slice. Every file
// of the batch appears exactly once, in Results or in Errors.
type BatchComplete struct {
	BatchID string
	Results []FileContent
	Errors  []Error
}

func (FileContent) isResponse()   {}
func (Error) isResponse()         {}
func (BatchProgress) isResponse() {}
func (BatchComplete) isResponse() {}
