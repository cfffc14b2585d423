// Package watcher reports template changes on disk, grouping bursts of
// events (editors often write a file several times per save) into one
// debounced batch.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/taglet/internal/logging"
)

// FileWatcher watches for file changes with debouncing
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	dirs      map[string]bool
	logger    logging.Logger
	mutex     sync.RWMutex
	stopOnce  sync.Once
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles file change events
type ChangeHandler func(events []ChangeEvent) error

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(debounceDelay),
		dirs:      make(map[string]bool),
		logger:    logger.WithComponent("watcher"),
	}, nil
}

// NewDebouncer creates a debouncer flushing delay after the last event.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		events: make(chan ChangeEvent, 100),
		output: make(chan []ChangeEvent, 10),
	}
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot := filepath.Clean(root)
	info, err := os.Stat(cleanRoot)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid root path: %s is not a directory", root)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != cleanRoot && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		fw.mutex.Lock()
		fw.dirs[path] = true
		fw.mutex.Unlock()
		return nil
	})
}

// Start starts the file watcher. It returns immediately; the watcher
// runs until ctx is cancelled or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.debouncer.Run(ctx)
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)
	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.debouncer.stop()
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	info, statErr := os.Stat(event.Name)

	// New directories are watched as they appear so templates created
	// inside them are seen. A directory moved in may already hold
	// templates, so its arrival is reported too.
	if statErr == nil && info.IsDir() {
		if event.Op&fsnotify.Create == fsnotify.Create && !strings.HasPrefix(filepath.Base(event.Name), ".") {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
			}
			fw.debouncer.Add(ChangeEvent{Type: EventTypeCreated, Path: event.Name, ModTime: info.ModTime()})
		}
		return
	}

	// A removed or renamed directory takes its templates with it. Its
	// name carries no template extension, so it bypasses the filters.
	if statErr != nil && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && fw.forgetDir(event.Name) {
		eventType := EventTypeDeleted
		if event.Op&fsnotify.Remove == 0 {
			eventType = EventTypeRenamed
		}
		fw.debouncer.Add(ChangeEvent{Type: eventType, Path: event.Name})
		return
	}

	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	var modTime time.Time
	var size int64
	if statErr == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		// chmod only
		return
	}

	fw.debouncer.Add(ChangeEvent{
		Type:    eventType,
		Path:    event.Name,
		ModTime: modTime,
		Size:    size,
	})
}

// forgetDir drops dir and its subdirectories from the watched set and
// reports whether dir was watched.
func (fw *FileWatcher) forgetDir(dir string) bool {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	if !fw.dirs[dir] {
		return false
	}
	prefix := dir + string(filepath.Separator)
	for d := range fw.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(fw.dirs, d)
		}
	}
	return true
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			fw.logger.Debug(ctx, "Template changes detected", "count", len(events))
			for _, handler := range handlers {
				if err := handler(events); err != nil {
					fw.logger.Error(ctx, err, "File watcher handler failed")
				}
			}
		}
	}
}

// Add queues an event. Events are dropped when the queue is full; a
// later event for the same burst still triggers a flush.
func (d *Debouncer) Add(event ChangeEvent) {
	select {
	case d.events <- event:
	default:
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}

// Run processes queued events until ctx is cancelled.
func (d *Debouncer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.stop()
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if len(d.pending) == 0 {
		return
	}

	// Keep the last event per path
	eventMap := make(map[string]ChangeEvent)
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}
	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	default:
		// A batch is already waiting; it triggers the same full rebuild.
	}

	d.pending = d.pending[:0]
}

// TemplateFilter accepts files with the given extension.
func TemplateFilter(ext string) FileFilter {
	return func(path string) bool {
		return strings.HasSuffix(path, ext)
	}
}

// ExcludeFilter rejects files whose base name matches any pattern.
func ExcludeFilter(patterns []string) FileFilter {
	return func(path string) bool {
		base := filepath.Base(path)
		for _, pattern := range patterns {
			if ok, _ := filepath.Match(pattern, base); ok {
				return false
			}
		}
		return true
	}
}

// NoHiddenFilter rejects hidden files and editor backup files.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}
