package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig holds configuration for the config watcher.
type WatcherConfig struct {
	// ConfigPath is the main config file. Its directory is watched even
	// while the file does not exist.
	ConfigPath string
	// Debounce coalesces bursts of events, e.g. an editor's save sequence.
	// Defaults to 250ms.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher triggers a callback when a YAML file next to the configuration or
// one of its includes changes.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	dirs map[string]struct{}
}

// NewWatcher starts watching the directory of cfg.ConfigPath.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		debounce: debounce,
		logger:   logger,
		dirs:     make(map[string]struct{}),
	}
	if err := w.addDir(filepath.Dir(cfg.ConfigPath)); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// SetFiles extends the watch to the directories of files, typically the
// files of the last successful load.
func (w *Watcher) SetFiles(files []string) {
	for _, f := range files {
		if err := w.addDir(filepath.Dir(f)); err != nil {
			w.logger.Warn("failed to watch config directory", "path", filepath.Dir(f), "error", err)
		}
	}
}

func (w *Watcher) addDir(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.dirs[dir] = struct{}{}
	return nil
}

// Dirs returns the watched directories.
func (w *Watcher) Dirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		out = append(out, d)
	}
	return out
}

// Run calls onChange after relevant file events settle. Blocks until ctx is
// cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func()) {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("config file event", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			onChange()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	return ext == ".yaml" || ext == ".yml"
}
