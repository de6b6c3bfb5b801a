package web

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow batches the flurry of writes one engine command produces
// (transcript append, temp file, rename) into a single refresh tick.
const debounceWindow = 500 * time.Millisecond

// watcher monitors the bubbles tree and fires onChange, debounced, whenever
// anything under it moves. fsnotify does not recurse, so each bubble
// directory is watched individually and new ones are picked up on create.
type watcher struct {
	fw   *fsnotify.Watcher
	root string
	deb  *Debouncer
	log  *slog.Logger
}

func newWatcher(root string, onChange func(), log *slog.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &watcher{
		fw:   fw,
		root: root,
		deb:  NewDebouncer(debounceWindow, onChange),
		log:  log,
	}

	// The root may not exist until the first bubble is created; watch the
	// parent so its appearance is noticed.
	if err := fw.Add(root); err != nil {
		if !os.IsNotExist(err) {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", root, err)
		}
		if err := fw.Add(filepath.Dir(root)); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", filepath.Dir(root), err)
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil && !os.IsNotExist(err) {
		fw.Close()
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if err := fw.Add(dir); err != nil {
			log.Warn("watching bubble directory", "dir", dir, "error", err)
		}
	}
	return w, nil
}

func (w *watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			// A new directory directly under the root is a new bubble;
			// watch its contents too.
			if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == w.root {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fw.Add(event.Name); err != nil {
						w.log.Warn("watching new bubble directory", "dir", event.Name, "error", err)
					}
				}
			}
			// The root itself appearing (first bubble ever) switches the
			// watch from the parent onto the tree.
			if event.Op&fsnotify.Create != 0 && event.Name == w.root {
				if err := w.fw.Add(w.root); err != nil {
					w.log.Warn("watching bubbles root", "error", err)
				}
			}
			w.deb.Trigger()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("bubble watcher", "error", err)
		}
	}
}

func (w *watcher) close() {
	w.deb.Cancel()
	_ = w.fw.Close()
}
