package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/blockforge/internal/ports"
)

// WatchMode rebuilds when watched files change. It polls modification times
// and debounces bursts of changes.
type WatchMode struct {
	fs           ports.FileSystem
	paths        func() []string
	root         string
	interval     time.Duration
	debounce     time.Duration
	buildFn      func(ctx context.Context) error
	out          io.Writer
	stopCh       chan struct{}
	stopOnce     sync.Once
	mu           sync.Mutex
	lastBuild    time.Time
	pendingBuild bool
}

// WatchOptions configures watch mode behavior.
type WatchOptions struct {
	// Root shortens printed paths.
	Root     string
	Interval time.Duration
	Debounce time.Duration
	Out      io.Writer
}

// NewWatchMode creates a watcher. paths is consulted on every poll, so the
// watched set follows the dependencies of the latest build.
func NewWatchMode(fs ports.FileSystem, opts WatchOptions, paths func() []string, buildFn func(ctx context.Context) error) *WatchMode {
	interval := opts.Interval
	if interval == 0 {
		interval = time.Second
	}
	debounce := opts.Debounce
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	return &WatchMode{
		fs:       fs,
		paths:    paths,
		root:     opts.Root,
		interval: interval,
		debounce: debounce,
		buildFn:  buildFn,
		out:      out,
		stopCh:   make(chan struct{}),
	}
}

// Start runs an initial build and then watches until ctx is done or Stop is
// called.
func (w *WatchMode) Start(ctx context.Context) error {
	_ = w.triggerBuild(ctx) //nolint:errcheck // Reported by triggerBuild
	return w.watch(ctx)
}

// Stop stops the watcher.
func (w *WatchMode) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *WatchMode) watch(ctx context.Context) error {
	lastMod := make(map[string]time.Time)
	w.updateFileTimes(lastMod)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	fmt.Fprintf(w.out, "Watching %d files for changes...\n", len(lastMod))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			changed := w.checkForChanges(lastMod)
			if len(changed) > 0 {
				w.handleChanges(ctx, changed)
			}
		}
	}
}

// updateFileTimes records the modification time of every watched file.
func (w *WatchMode) updateFileTimes(times map[string]time.Time) {
	for _, path := range w.paths() {
		info, err := w.fs.GetFileInfo(path)
		if err != nil {
			continue
		}
		times[path] = info.ModTime
	}
}

// checkForChanges compares current file times with last known times.
func (w *WatchMode) checkForChanges(lastMod map[string]time.Time) []string {
	var changed []string
	current := make(map[string]time.Time)

	w.updateFileTimes(current)

	for path, modTime := range current {
		if lastTime, exists := lastMod[path]; !exists || modTime.After(lastTime) {
			changed = append(changed, path)
		}
	}
	for path := range lastMod {
		if _, exists := current[path]; !exists {
			changed = append(changed, path)
		}
	}

	for path := range lastMod {
		if _, exists := current[path]; !exists {
			delete(lastMod, path)
		}
	}
	for path, modTime := range current {
		lastMod[path] = modTime
	}

	return changed
}

// handleChanges rebuilds, or schedules one rebuild when the last build was
// less than the debounce interval ago.
func (w *WatchMode) handleChanges(ctx context.Context, changed []string) {
	w.mu.Lock()
	fmt.Fprintf(w.out, "\nFiles changed:\n")
	for _, f := range changed {
		fmt.Fprintf(w.out, "  - %s\n", w.display(f))
	}

	if time.Since(w.lastBuild) < w.debounce {
		if !w.pendingBuild {
			w.pendingBuild = true
			go func() {
				time.Sleep(w.debounce)
				w.mu.Lock()
				w.pendingBuild = false
				w.mu.Unlock()
				_ = w.triggerBuild(ctx) //nolint:errcheck // Reported by triggerBuild
			}()
		}
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	_ = w.triggerBuild(ctx) //nolint:errcheck // Reported by triggerBuild
}

func (w *WatchMode) display(path string) string {
	if w.root == "" {
		return path
	}
	if rel, err := filepath.Rel(w.root, path); err == nil {
		return rel
	}
	return path
}

// triggerBuild runs the build function and reports its outcome.
func (w *WatchMode) triggerBuild(ctx context.Context) error {
	w.mu.Lock()
	w.lastBuild = time.Now()
	w.mu.Unlock()

	start := time.Now()
	err := w.buildFn(ctx)
	elapsed := time.Since(start).Round(time.Millisecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		fmt.Fprintf(w.out, "Build failed in %s: %v\n", elapsed, err)
	} else {
		fmt.Fprintf(w.out, "Build completed in %s\n", elapsed)
	}
	return err
}

// Watch rebuilds whenever an entry, the config file or a file dependency of
// the latest build changes.
func (b *Blockforge) Watch(ctx context.Context, out io.Writer) error {
	w := NewWatchMode(b.fs, WatchOptions{
		Root:     b.cfg.ProjectDir,
		Interval: b.cfg.Watch.Interval.Std(),
		Debounce: b.cfg.Watch.Debounce.Std(),
		Out:      out,
	}, b.WatchPaths, func(ctx context.Context) error {
		_, err := b.Build(ctx)
		return err
	})
	return w.Start(ctx)
}
