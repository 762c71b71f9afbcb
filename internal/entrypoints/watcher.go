// Package entrypoints watches the files named in runtimeConfig.entrypoints
// (§6) and triggers re-registration when they change, so `dbos start` in
// dev mode picks up newly decorated workflows/transactions/communicators
// without a restart.
package entrypoints

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hanzoai/dbosgo/internal/logger"
)

// Watcher watches a fixed set of entrypoint files and calls Reload whenever
// one of them changes, debounced so a burst of writes from a save-all only
// triggers one reload.
type Watcher struct {
	fsw    *fsnotify.Watcher
	files  map[string]struct{}
	reload func()
	cancel context.CancelFunc
}

// Start watches entrypointFiles and invokes reload (debounced 250ms) on any
// write/create/rename/remove event targeting one of them.
func Start(parentCtx context.Context, entrypointFiles []string, reload func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("entrypoints: create watcher: %w", err)
	}

	files := make(map[string]struct{}, len(entrypointFiles))
	dirs := make(map[string]struct{})
	for _, f := range entrypointFiles {
		abs, absErr := filepath.Abs(f)
		if absErr != nil {
			abs = f
		}
		files[filepath.Clean(abs)] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("entrypoints: watch %s: %w", dir, err)
		}
	}

	ctx, cancel := context.WithCancel(parentCtx)
	w := &Watcher{fsw: fsw, files: files, reload: reload, cancel: cancel}

	reloadCh := make(chan struct{}, 1)
	go w.dispatchLoop(ctx, reloadCh)
	go w.debounceLoop(ctx, reloadCh)

	return w, nil
}

func (w *Watcher) dispatchLoop(ctx context.Context, reloadCh chan<- struct{}) {
	defer w.fsw.Close()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if _, watched := w.files[filepath.Clean(event.Name)]; !watched {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			select {
			case reloadCh <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Logger.Warn().Err(err).Msg("dbos: entrypoint watcher error")
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context, reloadCh <-chan struct{}) {
	var mu sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-reloadCh:
			if !ok {
				return
			}
			time.Sleep(250 * time.Millisecond)
			mu.Lock()
			logger.Logger.Info().Msg("dbos: entrypoint changed, re-registering")
			w.reload()
			mu.Unlock()
		}
	}
}

// Stop halts the watcher goroutines and closes the underlying fsnotify handle.
func (w *Watcher) Stop() {
	w.cancel()
}
