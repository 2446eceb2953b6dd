package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cesargomez89/trackreconciler/internal/logger"
	"github.com/cesargomez89/trackreconciler/internal/storage"
)

// RefreshFunc rebuilds the index after the library changed.
type RefreshFunc func(ctx context.Context) error

// Watcher schedules debounced index refreshes from filesystem events, from
// explicit Trigger calls, and from a periodic fallback rescan.
type Watcher struct {
	root     string
	debounce time.Duration
	interval time.Duration
	refresh  RefreshFunc
	logger   *logger.Logger

	trigger chan struct{}
	fsw     *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewWatcher(root string, debounce, interval time.Duration, refresh RefreshFunc, log *logger.Logger) *Watcher {
	return &Watcher{
		root:     root,
		debounce: debounce,
		interval: interval,
		refresh:  refresh,
		logger:   log.WithComponent("watcher"),
		trigger:  make(chan struct{}, 1),
	}
}

// Start begins watching root recursively. Without a root it only serves
// Trigger and the periodic rescan.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	if w.root != "" {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		w.fsw = fsw
		if err := w.addTree(w.root); err != nil {
			fsw.Close()
			return fmt.Errorf("failed to watch %s: %w", w.root, err)
		}
	}

	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Info("Library watcher started", "root", w.root, "debounce", w.debounce, "interval", w.interval)
	return nil
}

// Stop ends the loop and waits for an in-progress refresh.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.fsw != nil {
		w.fsw.Close()
	}
}

// Trigger requests a debounced refresh. It never blocks.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	var periodic <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		periodic = ticker.C
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.fsw != nil {
		events = w.fsw.Events
		errs = w.fsw.Errors
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if w.relevant(event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("Watcher error", "error", err)

		case <-w.trigger:
			timer.Reset(w.debounce)

		case <-timer.C:
			w.run(ctx, "change")

		case <-periodic:
			w.run(ctx, "interval")
		}
	}
}

// relevant reports whether event should schedule a refresh. New directories
// are added to the watch as a side effect.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return true
		}
	}
	if !storage.IsAudioFile(event.Name) {
		return false
	}
	return event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Rename) || event.Op.Has(fsnotify.Remove)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := w.refresh(ctx); err != nil {
		w.logger.Error("Library refresh failed", "reason", reason, "error", err)
		return
	}
	w.logger.Info("Library refreshed", "reason", reason, "duration", time.Since(start))
}
