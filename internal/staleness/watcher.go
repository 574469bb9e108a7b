package staleness

import (
	"fmt"
	"path"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/agusx1211/contextpack/internal/logging"
)

// Watcher turns filesystem write events under a root into calls to
// onChange with the slash-delimited path relative to the root.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	onChange func(rel string)
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once
}

// NewWatcher watches root and the directories holding paths. Directories
// that cannot be watched are skipped with a warning.
func NewWatcher(root string, paths []string, onChange func(rel string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		root:     root,
		watcher:  fw,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	log := logging.Named("staleness")
	for _, dir := range watchDirs(paths) {
		full := filepath.Join(root, filepath.FromSlash(dir))
		if err := fw.Add(full); err != nil {
			log.Warn("failed to watch directory", logging.String("dir", full), logging.Err(err))
		}
	}

	go w.run()
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	log := logging.Named("staleness")
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil {
				continue
			}
			log.Debug("file changed", logging.String("path", rel))
			w.onChange(filepath.ToSlash(rel))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("file watcher error", logging.Err(err))
		}
	}
}

func watchDirs(paths []string) []string {
	seen := map[string]bool{".": true}
	dirs := []string{"."}
	for _, p := range paths {
		d := path.Dir(p)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs
}
