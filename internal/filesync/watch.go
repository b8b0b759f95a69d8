package filesync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher reports bursts of changes below a local root, as slash separated
// relative paths, skipping whatever the rules exclude.
type Watcher struct {
	root     string
	rules    Rules
	debounce time.Duration

	watcher *fsnotify.Watcher
}

func NewWatcher(root string, rules Rules, debounce time.Duration) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{root: root, rules: rules, debounce: debounce, watcher: watcher}

	if err := w.addTree(".", nil); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to add watcher: %w", err)
	}
	return w, nil
}

// addTree watches every directory below rel that the rules keep. Regular
// files found on the way are added to files, when not nil.
func (w *Watcher) addTree(rel string, files map[string]struct{}) error {
	return fs.WalkDir(os.DirFS(w.root), rel, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != "." && w.rules.Excluded(p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.watcher.Add(filepath.Join(w.root, filepath.FromSlash(p)))
		}
		if files != nil && d.Type().IsRegular() {
			files[p] = struct{}{}
		}
		return nil
	})
}

// Run calls onChange with each debounced batch of changed paths until ctx is
// done. An error returned by onChange is logged and watching continues.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string) error) error {
	defer w.watcher.Close()

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			slog.Debug("watcher event", "op", event.Op, "path", event.Name)
			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if w.rules.Excluded(rel) {
				continue
			}
			// a new directory may arrive already populated, moved in or
			// written before its watch was added
			if event.Has(fsnotify.Create) {
				if i, err := os.Stat(event.Name); err == nil && i.IsDir() {
					if err := w.addTree(rel, pending); err != nil {
						slog.Warn("failed to add watcher", "path", event.Name, "err", err)
					}
					timer.Reset(w.debounce)
					continue
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			pending[rel] = struct{}{}
			timer.Reset(w.debounce)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)
			if err := onChange(ctx, changed); err != nil {
				slog.Warn("failed to sync changes", "files", len(changed), "err", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "err", err)
		}
	}
}
