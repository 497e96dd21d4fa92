// ABOUTME: Working copy change watcher
// ABOUTME: Turns out-of-band file edits into update notifications

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch starts observing the working copy for modifications made
// outside this process, e.g. a git pull or a hand edit, and reports
// them to subscribers. Returns a stop function.
func (w *WorkingCopy) Watch() (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("storage: start watcher: %w", err)
	}

	if err := watcher.Add(w.Path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("storage: watch %s: %w", w.Path, err)
	}

	// Existing type directories
	entries, err := os.ReadDir(w.Path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("storage: watch %s: %w", w.Path, err)
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == ".git" {
			continue
		}
		if err := watcher.Add(filepath.Join(w.Path, e.Name())); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("storage: watch %s: %w", e.Name(), err)
		}
	}

	done := make(chan struct{})
	go w.watchLoop(watcher, done)

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

func (w *WorkingCopy) watchLoop(watcher *fsnotify.Watcher, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(watcher, event)
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *WorkingCopy) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	rel, err := filepath.Rel(w.Path, event.Name)
	if err != nil {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if parts[0] == ".git" {
		return
	}

	// A new type directory appeared: start watching it too.
	if len(parts) == 1 && event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			watcher.Add(event.Name)
		}
		return
	}

	if len(parts) != 2 || !strings.HasSuffix(parts[1], fileExt) {
		return
	}

	objectType := parts[0]
	ref := strings.TrimSuffix(parts[1], fileExt)
	w.ReportUpdated(objectType, []string{ref})
}
