// Package watch runs conversions automatically: it monitors a drop
// directory for incoming SDF files and feeds each one to the converter
// once it has stopped changing. Converted output lands in the usual
// output directory, so the drop directory itself is never rewritten.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/zhongsheng-chen/SDF-Converter/internal/pipeline"
)

// FileConverter converts one file on disk.
type FileConverter interface {
	Convert(ctx context.Context, path string) (pipeline.Summary, error)
}

// Options configures a Watcher.
type Options struct {
	// Dir is the drop directory to monitor. It is created if absent.
	Dir string

	// Debounce is how long a file must stay quiet before it is
	// converted; uploads arrive in bursts of writes.
	Debounce time.Duration

	// Extensions lists the file suffixes treated as SDF input.
	// Defaults to .sdf.
	Extensions []string

	Logger *zap.Logger
}

// Watcher monitors a drop directory and converts files as they settle.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	converter   FileConverter
	dir         string
	extensions  []string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	converted   map[string]time.Time // path → mtime at last conversion
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	logger      *zap.Logger

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	FilesCreated  int
	FilesModified int
	FilesRemoved  int
	Conversions   int
	Failures      int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// New creates a watcher over opts.Dir feeding conv.
func New(conv FileConverter, opts Options) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	extensions := opts.Extensions
	if len(extensions) == 0 {
		extensions = []string{".sdf"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		watcher:     watcher,
		converter:   conv,
		dir:         opts.Dir,
		extensions:  extensions,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		converted:   make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
	}, nil
}

// Start begins watching the drop directory. Non-blocking; the event
// loop runs in its own goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.logger.Warn("Failed to create drop directory", zap.String("dir", w.dir), zap.Error(err))
	}
	if err := w.watcher.Add(w.dir); err != nil {
		w.logger.Warn("Initial watch failed", zap.String("dir", w.dir), zap.Error(err))
	} else {
		w.logger.Info("Watching drop directory", zap.String("dir", w.dir))
	}

	go w.run(ctx)

	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Error closing watcher", zap.Error(err))
	}
	w.logger.Info("Watcher stopped")
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats returns a snapshot of the watcher statistics.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// ResetStats clears the watcher statistics.
func (w *Watcher) ResetStats() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats = Stats{}
}

// run is the main event loop.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Watcher context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

// handleEvent records a single filesystem event for debounced handling.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.matchesExtension(event.Name) {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "remove"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return // chmod etc.
	}

	w.logger.Debug("Drop directory event",
		zap.String("type", eventType),
		zap.String("path", event.Name))

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType

	switch eventType {
	case "create":
		w.stats.FilesCreated++
		w.debounceMap[event.Name] = time.Now()
	case "modify":
		w.stats.FilesModified++
		w.debounceMap[event.Name] = time.Now()
	case "remove", "rename":
		// The file is gone; drop any pending conversion.
		w.stats.FilesRemoved++
		delete(w.debounceMap, event.Name)
	}
}

// processDebouncedEvents converts files whose last event has settled
// past the debounce window.
func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	toProcess := make([]string, 0)
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			toProcess = append(toProcess, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range toProcess {
		w.convertFile(ctx, path)
	}
}

// convertFile runs one settled file through the converter. Files whose
// mtime has not moved since their last conversion are skipped, so a
// stray event cannot reconvert an unchanged file.
func (w *Watcher) convertFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.logger.Debug("File vanished before conversion", zap.String("path", path))
			return
		}
		w.logger.Error("Failed to stat incoming file", zap.String("path", path), zap.Error(err))
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	w.mu.RLock()
	last, seen := w.converted[path]
	w.mu.RUnlock()
	if seen && last.Equal(info.ModTime()) {
		w.logger.Debug("File unchanged since last conversion", zap.String("path", path))
		return
	}

	sum, err := w.converter.Convert(ctx, path)
	w.mu.Lock()
	if err != nil {
		w.stats.Failures++
	} else {
		w.stats.Conversions++
		w.converted[path] = info.ModTime()
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Conversion failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("Converted incoming file",
		zap.String("path", path),
		zap.String("run_id", sum.RunID),
		zap.Int("total", sum.Total),
		zap.Int("failed", sum.Failed))
}

// TriggerScan converts every matching file already sitting in the drop
// directory. Useful at startup to pick up a backlog.
func (w *Watcher) TriggerScan(ctx context.Context) error {
	w.logger.Info("Scanning drop directory", zap.String("dir", w.dir))

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !w.matchesExtension(entry.Name()) {
			continue
		}
		w.convertFile(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

func (w *Watcher) matchesExtension(name string) bool {
	ext := filepath.Ext(name)
	for _, want := range w.extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}
