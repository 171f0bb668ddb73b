package agentserver

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/internal/credentials"
	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

const (
	// DefaultDebounceInterval is the time to wait after the last change
	// before reloading.
	DefaultDebounceInterval = 500 * time.Millisecond

	// DefaultPollInterval is used when fsnotify cannot watch the directory.
	DefaultPollInterval = 5 * time.Second
)

// WatcherConfig holds configuration for the file watcher.
type WatcherConfig struct {
	// Dir is the mooagent config directory.
	Dir string

	// Files are the file names inside Dir that trigger a reload. Defaults
	// to config.yaml and tokens.json.
	Files []string

	Debounce     time.Duration
	PollInterval time.Duration

	// OnChange is called once per burst of changes.
	OnChange func()
}

// Watcher reloads state when config.yaml or tokens.json change on disk, so
// edits made by the CLI or a text editor are picked up by a running server.
type Watcher struct {
	mu sync.Mutex

	config    WatcherConfig
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	lastModTimes map[string]time.Time

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher; call Start to begin watching.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if len(cfg.Files) == 0 {
		cfg.Files = []string{config.ConfigFileName, credentials.TokenFileName}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounceInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Watcher{
		config:       cfg,
		lastModTimes: make(map[string]time.Time),
	}
}

// Start begins watching. The directory itself is watched because saves
// replace files by rename. Falls back to polling when fsnotify is unusable.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.running = true

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("Watcher", "fsnotify not available, falling back to polling: %v", err)
		go w.poll(w.stopCh)
		return nil
	}

	if err := watcher.Add(w.config.Dir); err != nil {
		logging.Warn("Watcher", "Failed to watch directory %s, falling back to polling: %v", w.config.Dir, err)
		watcher.Close()
		go w.poll(w.stopCh)
		return nil
	}

	w.fsWatcher = watcher
	go w.processEvents(w.stopCh, watcher.Events, watcher.Errors)

	logging.Info("Watcher", "Watching %s for configuration and token changes", w.config.Dir)
	return nil
}

func (w *Watcher) processEvents(stopCh <-chan struct{}, eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("Watcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.isRelevantFile(filepath.Base(event.Name)) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug("Watcher", "File changed: %s (%s)", event.Name, event.Op)
	w.triggerDebounced()
}

func (w *Watcher) isRelevantFile(name string) bool {
	for _, f := range w.config.Files {
		if name == f {
			return true
		}
	}
	return false
}

// triggerDebounced coalesces the create/write/rename events of one atomic
// save into a single callback.
func (w *Watcher) triggerDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

func (w *Watcher) poll(stopCh <-chan struct{}) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.checkForChanges()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if w.checkForChanges() {
				logging.Debug("Watcher", "Changes detected via polling")
				w.triggerDebounced()
			}
		}
	}
}

// checkForChanges records modification times and reports whether any
// known file changed since the previous call.
func (w *Watcher) checkForChanges() bool {
	changed := false

	for _, name := range w.config.Files {
		path := filepath.Join(w.config.Dir, name)

		info, err := os.Stat(path)
		if err != nil {
			if _, seen := w.lastModTimes[path]; seen {
				delete(w.lastModTimes, path)
				changed = true
			}
			continue
		}

		if last, seen := w.lastModTimes[path]; !seen || !info.ModTime().Equal(last) {
			if seen {
				changed = true
			}
			w.lastModTimes[path] = info.ModTime()
		}
	}

	return changed
}

// Stop stops watching and cancels any pending reload.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("Watcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	logging.Debug("Watcher", "Stopped watching %s", w.config.Dir)
	return nil
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
