package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FSNotifyWatcher implements Watcher using fsnotify. fsnotify is not
// recursive, so every directory below a root gets its own watch and
// directories created later are added as they appear.
type FSNotifyWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	errorChan chan error
	config    Config
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.RWMutex
	watchedPaths map[string]bool
	closeOnce    sync.Once
}

// NewFSNotifyWatcher creates a new fsnotify-based watcher
func NewFSNotifyWatcher(config Config, logger zerolog.Logger) (*FSNotifyWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FSNotifyWatcher{
		watcher:      fsWatcher,
		debouncer:    NewDebouncer(config.Debounce, config.MaxDelay),
		errorChan:    make(chan error, 10),
		config:       config,
		logger:       logger.With().Str("component", "watcher").Logger(),
		ctx:          ctx,
		cancel:       cancel,
		watchedPaths: make(map[string]bool),
	}, nil
}

// Start begins watching the specified paths. The watcher stops when ctx is
// cancelled or Close is called.
func (w *FSNotifyWatcher) Start(ctx context.Context, paths ...string) error {
	w.mu.Lock()
	for _, path := range paths {
		if err := w.addPathRecursive(path); err != nil {
			w.mu.Unlock()
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watchLoop(ctx)

	w.logger.Info().Strs("paths", paths).Int("directories", w.WatchedCount()).Msg("FSNotify watcher started")
	return nil
}

// Batches returns the debounced event batches
func (w *FSNotifyWatcher) Batches() <-chan []Event {
	return w.debouncer.Events()
}

// Errors returns the error channel
func (w *FSNotifyWatcher) Errors() <-chan error {
	return w.errorChan
}

// WatchedCount returns the number of directories currently watched
func (w *FSNotifyWatcher) WatchedCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.watchedPaths)
}

// Close stops watching and cleans up resources
func (w *FSNotifyWatcher) Close() error {
	var closeErr error
	w.closeOnce.Do(func() {
		w.cancel()

		if err := w.watcher.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close fsnotify watcher: %w", err)
		}

		w.wg.Wait()
		w.debouncer.Close()
		close(w.errorChan)

		w.logger.Debug().Msg("FSNotify watcher closed")
	})
	return closeErr
}

// addPathRecursive adds a path and all its subdirectories to the watcher.
// Callers hold w.mu.
func (w *FSNotifyWatcher) addPathRecursive(rootPath string) error {
	if err := w.watcher.Add(rootPath); err != nil {
		return err
	}
	w.watchedPaths[rootPath] = true

	return filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to walk directory for watching")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == rootPath {
			return nil
		}
		if w.config.Skip != nil && w.config.Skip(path) {
			return filepath.SkipDir
		}
		if w.watchedPaths[path] {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to add subdirectory to watcher")
			return nil
		}
		w.watchedPaths[path] = true
		return nil
	})
}

// watchLoop is the main event processing loop
func (w *FSNotifyWatcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			watcherEvent := w.convertEvent(event)
			if watcherEvent == nil {
				continue
			}

			switch {
			case watcherEvent.Type == EventCreate && watcherEvent.IsDir:
				w.mu.Lock()
				if w.config.Skip == nil || !w.config.Skip(watcherEvent.Path) {
					if err := w.addPathRecursive(watcherEvent.Path); err != nil {
						w.logger.Warn().Err(err).Str("path", watcherEvent.Path).Msg("Failed to watch new directory")
					}
				}
				w.mu.Unlock()
			case watcherEvent.Type == EventRemove || watcherEvent.Type == EventRename:
				w.mu.Lock()
				delete(w.watchedPaths, watcherEvent.Path)
				w.mu.Unlock()
			}

			w.debouncer.Add(*watcherEvent)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			select {
			case w.errorChan <- err:
			default:
				w.logger.Warn().Err(err).Msg("Error channel full, dropping error")
			}
		}
	}
}

// convertEvent converts fsnotify.Event to watcher.Event. Permission-only
// changes are ignored since they cannot change where a file belongs.
func (w *FSNotifyWatcher) convertEvent(event fsnotify.Event) *Event {
	var eventType EventType

	switch {
	case event.Has(fsnotify.Create):
		eventType = EventCreate
	case event.Has(fsnotify.Write):
		eventType = EventWrite
	case event.Has(fsnotify.Remove):
		eventType = EventRemove
	case event.Has(fsnotify.Rename):
		eventType = EventRename
	default:
		return nil
	}

	isDir := false
	if eventType == EventCreate {
		if info, err := os.Lstat(event.Name); err == nil {
			isDir = info.IsDir()
		}
	}

	return &Event{
		Type:      eventType,
		Path:      event.Name,
		Timestamp: time.Now(),
		IsDir:     isDir,
	}
}

// Ensure FSNotifyWatcher implements the interface
var _ Watcher = (*FSNotifyWatcher)(nil)
