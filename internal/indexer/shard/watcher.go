package shard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the router whenever another process writes segments or
// deleted-docs sidecars into a shard directory. Bursts of filesystem events
// are coalesced into one reload.
type Watcher struct {
	router   *Router
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func(changed int)
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewWatcher watches every shard directory of router. onReload, if set, is
// called after each reload that changed at least one segment.
func NewWatcher(router *Router, debounce time.Duration, onReload func(changed int)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating segment watcher: %w", err)
	}
	for _, dir := range router.Dirs() {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		router:   router,
		watcher:  fw,
		debounce: debounce,
		onReload: onReload,
		logger:   slog.Default().With("component", "segment-watcher"),
	}, nil
}

// Start runs the event loop until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(w.debounce)
				} else {
					timer.Reset(w.debounce)
				}
				fire = timer.C
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("segment watcher error", "error", err)
			case <-fire:
				fire = nil
				w.reload()
			}
		}
	}()
	w.logger.Info("segment watcher started", "shards", w.router.NumShards(), "debounce", w.debounce)
}

func (w *Watcher) reload() {
	changed := w.router.ReloadAll()
	if changed == 0 {
		return
	}
	w.logger.Info("shards reloaded", "changed", changed)
	if w.onReload != nil {
		w.onReload(changed)
	}
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
