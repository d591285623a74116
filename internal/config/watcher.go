package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/accessd/internal/observability"
)

// DefaultDebounceDelay coalesces the burst of events editors emit on save.
const DefaultDebounceDelay = 100 * time.Millisecond

// ReloadFunc applies a freshly loaded configuration. When it returns an
// error the previous configuration stays current.
type ReloadFunc func(ctx context.Context, cfg *Config) error

// ErrorCallback is called when loading or applying a configuration fails.
type ErrorCallback func(error)

// Watcher reloads the configuration file when it changes on disk.
type Watcher struct {
	path          string
	fs            *fsnotify.Watcher
	apply         ReloadFunc
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration
	current       atomic.Pointer[Config]
	reloadMu      sync.Mutex

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback for the watcher.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a watcher for path. initial is the configuration
// already in effect; apply is called for every later valid revision.
func NewWatcher(path string, initial *Config, apply ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	if apply == nil {
		return nil, errors.New("reload function is required")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          absPath,
		fs:            fsWatcher,
		apply:         apply,
		logger:        observability.NopLogger(),
		debounceDelay: DefaultDebounceDelay,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
	w.current.Store(initial)

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start watches the directory holding the file, so atomic renames by
// editors are seen too. It returns once the watch is registered.
func (w *Watcher) Start(ctx context.Context) error {
	var err error
	w.startOnce.Do(func() {
		if err = w.fs.Add(filepath.Dir(w.path)); err != nil {
			return
		}
		w.logger.Info("watching configuration file", observability.String("path", w.path))
		w.started.Store(true)
		go w.loop(ctx)
	})
	return err
}

// Stop stops watching and waits for the watch loop to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.fs.Close()
		if w.started.Load() {
			<-w.stoppedCh
		}
	})
	return err
}

// Current returns the configuration most recently applied.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// ForceReload loads and applies the file immediately.
func (w *Watcher) ForceReload(ctx context.Context) error {
	return w.reload(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("config file changed",
				observability.String("path", event.Name),
				observability.String("op", event.Op.String()),
			)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.debounceDelay)
			fire = debounce.C

		case <-fire:
			fire = nil
			_ = w.reload(ctx)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.report("config watcher error", err)
		}
	}
}

// relevant reports whether event is a write or create of the watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func (w *Watcher) reload(ctx context.Context) error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	w.logger.Info("reloading configuration", observability.String("path", w.path))

	cfg, err := Load(w.path)
	if err != nil {
		w.report("failed to load configuration", err)
		return err
	}

	if err := w.apply(ctx, cfg); err != nil {
		w.report("failed to apply configuration", err)
		return err
	}

	w.current.Store(cfg)
	w.logger.Info("configuration reloaded successfully")
	return nil
}

func (w *Watcher) report(msg string, err error) {
	w.logger.Error(msg, observability.Error(err))
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}
