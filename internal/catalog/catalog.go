// Package catalog indexes the files discovered under an opened root.
//
// A Catalog is immutable once built. Opening another folder (or rescanning
// the same one) produces a new Catalog that replaces the old one wholesale.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/agusx1211/contextpack/internal/logging"
)

var (
	// ErrNoFiles is returned by Scan when nothing is left after filtering.
	ErrNoFiles = errors.New("no relevant files after filtering ignore patterns")
	// ErrUnknownPath is returned for paths that are not in the catalog.
	ErrUnknownPath = errors.New("path not in catalog")
)

// Handle produces the content and current metadata of one file on demand.
type Handle interface {
	Read() ([]byte, error)
	Stat() (fs.FileInfo, error)
}

// Entry is one file of the flat listing handed to Scan.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
	Handle  Handle
}

// FileRecord is the catalog's view of one discovered file.
type FileRecord struct {
	Path    string
	Size    int64
	ModTime time.Time
	Handle  Handle
}

// Name returns the file name without its directory.
func (r FileRecord) Name() string {
	return path.Base(r.Path)
}

// Catalog maps relative paths to file records.
type Catalog struct {
	root    string
	records map[string]FileRecord
	paths   []string
	lower   map[string]string
	tree    *Node
}

// Scan builds a catalog from a flat file listing, dropping every entry the
// policy ignores. A nil policy keeps everything.
func Scan(root string, entries []Entry, policy *IgnorePolicy) (*Catalog, error) {
	c := &Catalog{
		root:    root,
		records: make(map[string]FileRecord, len(entries)),
		lower:   make(map[string]string, len(entries)),
	}

	skipped := 0
	for _, e := range entries {
		p := normalize(e.Path)
		if p == "" {
			continue
		}
		if policy.Ignored(p) {
			skipped++
			continue
		}
		if _, dup := c.records[p]; dup {
			continue
		}
		c.records[p] = FileRecord{Path: p, Size: e.Size, ModTime: e.ModTime, Handle: e.Handle}
		c.paths = append(c.paths, p)
	}

	if len(c.paths) == 0 {
		return nil, ErrNoFiles
	}

	sort.Strings(c.paths)
	for _, p := range c.paths {
		key := strings.ToLower(p)
		if _, taken := c.lower[key]; !taken {
			c.lower[key] = p
		}
	}
	c.tree = buildTree(root, c.paths, c.records)

	logging.Named("catalog").Debug("catalog scanned",
		logging.String("root", root),
		logging.Int("files", len(c.paths)),
		logging.Int("ignored", skipped),
	)
	return c, nil
}

// Walk lists every regular file in fsys. Directories the policy ignores are
// pruned instead of being descended into.
func Walk(fsys fs.FS, policy *IgnorePolicy) ([]Entry, error) {
	var entries []Entry
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			logging.Named("catalog").Warn("skipping unreadable path", logging.String("path", p), logging.Err(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if policy.IgnoredDir(p) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, Entry{
			Path:    p,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Handle:  FSHandle(fsys, p),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return entries, nil
}

// Root returns the name the catalog was opened under.
func (c *Catalog) Root() string {
	return c.root
}

// Len returns the number of files.
func (c *Catalog) Len() int {
	return len(c.paths)
}

// Paths returns every path in lexical order.
func (c *Catalog) Paths() []string {
	out := make([]string, len(c.paths))
	copy(out, c.paths)
	return out
}

// Get returns the record for path.
func (c *Catalog) Get(p string) (FileRecord, bool) {
	r, ok := c.records[p]
	return r, ok
}

// Has reports whether path is in the catalog.
func (c *Catalog) Has(p string) bool {
	_, ok := c.records[p]
	return ok
}

// LookupFold finds a path ignoring case. When several paths differ only by
// case the lexically first one wins.
func (c *Catalog) LookupFold(p string) (string, bool) {
	found, ok := c.lower[strings.ToLower(p)]
	return found, ok
}

// ModTime returns the freshest known modification time for path, asking
// the handle first and falling back to the time recorded at scan.
func (c *Catalog) ModTime(p string) (time.Time, bool) {
	r, ok := c.records[p]
	if !ok {
		return time.Time{}, false
	}
	if r.Handle != nil {
		if info, err := r.Handle.Stat(); err == nil {
			return info.ModTime(), true
		}
	}
	return r.ModTime, true
}

// Under returns the paths inside dir, in lexical order. An empty dir or "."
// returns everything.
func (c *Catalog) Under(dir string) []string {
	dir = normalize(dir)
	if dir == "" {
		return c.Paths()
	}
	prefix := dir + "/"
	var out []string
	for _, p := range c.paths {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// Tree returns the directory tree built at scan time.
func (c *Catalog) Tree() *Node {
	return c.tree
}

// TotalSize returns the sum of all file sizes.
func (c *Catalog) TotalSize() int64 {
	return c.tree.Size
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

type fsHandle struct {
	fsys fs.FS
	name string
}

// FSHandle returns a Handle that reads name from fsys.
func FSHandle(fsys fs.FS, name string) Handle {
	return fsHandle{fsys: fsys, name: name}
}

func (h fsHandle) Read() ([]byte, error) {
	return fs.ReadFile(h.fsys, h.name)
}

func (h fsHandle) Stat() (fs.FileInfo, error) {
	return fs.Stat(h.fsys, h.name)
}
