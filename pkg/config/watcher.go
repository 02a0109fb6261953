// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	"github.com/tracerequests/core/pkg/logging"
)

// DefaultDebounce is the quiet period after the last change before a reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher monitors settings files for changes and triggers a reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a new file watcher. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(debounce time.Duration) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  watcher,
		debounce: debounce,
		log:      logging.GetLogger().With("component", "config-watcher"),
		done:     make(chan struct{}),
	}, nil
}

// Watch starts monitoring paths and returns once the watches are in place.
// reloadFunc runs on its own goroutine after changes settle.
//
// Parent directories are watched instead of the files themselves so that
// atomic saves (write temp file, rename over target) are seen too.
func (w *Watcher) Watch(paths []string, reloadFunc func()) error {
	watched := make(map[string][]string)
	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			w.log.Warn("Failed to get absolute path", "path", path, "error", err)
			continue
		}
		parent := filepath.Dir(absPath)
		watched[parent] = append(watched[parent], filepath.Base(absPath))
	}

	for parent := range watched {
		if err := w.watcher.Add(parent); err != nil {
			return fmt.Errorf("failed to watch %s: %w", parent, err)
		}
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !relevant(watched, event) {
					continue
				}
				w.schedule(reloadFunc)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Error("File watcher error", "error", err)
			case <-w.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher and cancels a pending reload.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = w.watcher.Close()
		w.wg.Wait()
	})
}

func (w *Watcher) schedule(reloadFunc func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.log.Info("Settings file changed, reloading")
		reloadFunc()
	})
}

func relevant(watched map[string][]string, event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Chmod) {
		return false
	}
	name := event.Name
	if abs, err := filepath.Abs(name); err == nil {
		name = abs
	}
	filename := filepath.Base(name)
	// Editor backup files.
	if strings.HasSuffix(filename, "~") {
		return false
	}
	return lo.Contains(watched[filepath.Dir(name)], filename)
}
