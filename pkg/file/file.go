// Package file implements replicant.SchemaSource over the local
// filesystem, using fsnotify to hot-reload a schema document when it
// changes on disk.
package file

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a single file for changes.
type Watcher struct {
	path string
}

// New constructs a Watcher for path. The file need not exist until Watch
// is called.
func New(path string) *Watcher {
	return &Watcher{path: path}
}

// Watch emits path's current contents immediately, then emits again on
// every subsequent write, until ctx is canceled.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	initial, err := os.ReadFile(w.path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return nil, err
	}

	out := make(chan []byte)
	target := filepath.Clean(w.path)

	go func() {
		defer fsw.Close()
		defer close(out)

		select {
		case out <- initial:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				data, err := os.ReadFile(w.path)
				if err != nil {
					continue
				}
				select {
				case out <- data:
				case <-ctx.Done():
					return
				}
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return out, nil
}
