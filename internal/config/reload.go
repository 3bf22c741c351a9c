package config

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// Reloader watches a profile file and reloads it on changes so watch mode
// can re-mint. It uses fsnotify for file events and SIGHUP on Unix
// (reload_unix.go). Reloads are debounced and then throttled to at most
// one per Watch.MinInterval.
type Reloader struct {
	mu        sync.RWMutex
	current   *Config
	path      string
	logger    *slog.Logger
	callbacks []func(*Config)
	watcher   *fsnotify.Watcher
	limiter   *rate.Limiter
	stopOnce  sync.Once
	stopCh    chan struct{}

	// inflight tracks throttled reloads started by the watcher or SIGHUP.
	// stopped is guarded by inflightMu so no Add happens after Stop waits.
	inflightMu sync.Mutex
	stopped    bool
	inflight   sync.WaitGroup
}

// NewReloader creates a Reloader for the given profile path.
func NewReloader(path string, initial *Config, logger *slog.Logger) *Reloader {
	return &Reloader{
		current: initial,
		path:    path,
		logger:  logger,
		limiter: newLimiter(initial.Watch.MinInterval),
		stopCh:  make(chan struct{}),
	}
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Current returns the active profile.
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload registers a callback invoked with the new profile after a
// successful reload.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Start begins watching the profile file and listening for SIGHUP (on Unix).
func (r *Reloader) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	if err := watcher.Add(r.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", r.path, err)
	}
	r.watcher = watcher

	r.logger.Info("profile watcher started", "path", r.path)

	go r.watchLoop()

	r.registerSignalHandler()
	return nil
}

// Stop terminates the file watcher and signal handler, then waits for any
// reload already running to finish its callbacks. Safe to call twice. It
// must not be called from an OnReload callback.
func (r *Reloader) Stop() {
	r.stopOnce.Do(func() {
		r.inflightMu.Lock()
		r.stopped = true
		r.inflightMu.Unlock()

		close(r.stopCh)
		if r.watcher != nil {
			r.watcher.Close()
		}
	})
	r.inflight.Wait()
}

// beginReload registers an in-flight reload, or reports false once stopped.
func (r *Reloader) beginReload() bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if r.stopped {
		return false
	}
	r.inflight.Add(1)
	return true
}

// Reload loads the profile from disk and, if valid, swaps it in and
// notifies all registered callbacks. An invalid profile keeps the current
// one. Returns true if the reload succeeded.
func (r *Reloader) Reload() bool {
	r.logger.Info("reloading profile", "path", r.path)

	newCfg, err := Load(r.path)
	if err != nil {
		r.logger.Error("profile reload failed: invalid profile, keeping current",
			"path", r.path, "error", err)
		return false
	}
	for _, w := range newCfg.Warnings {
		r.logger.Warn("profile warning", "message", w)
	}

	r.mu.Lock()
	old := r.current
	r.current = newCfg
	callbacks := make([]func(*Config), len(r.callbacks))
	copy(callbacks, r.callbacks)
	if old.Watch.MinInterval != newCfg.Watch.MinInterval {
		r.limiter.SetLimit(newLimiter(newCfg.Watch.MinInterval).Limit())
	}
	r.mu.Unlock()

	r.logChanges(old, newCfg)

	for _, cb := range callbacks {
		cb(newCfg)
	}

	return true
}

// throttledReload waits for the limiter before reloading, so a burst of
// saves yields one reload per interval and the last write still wins.
// After Stop it does nothing.
func (r *Reloader) throttledReload() {
	if !r.beginReload() {
		r.logger.Debug("reload skipped, reloader stopped")
		return
	}
	defer r.inflight.Done()

	res := r.limiter.Reserve()
	if d := res.Delay(); d > 0 {
		r.logger.Debug("reload throttled", "delay", d)
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-r.stopCh:
			res.Cancel()
			return
		}
	}
	r.Reload()
}

// watchLoop processes fsnotify events with debouncing.
func (r *Reloader) watchLoop() {
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(r.Current().Watch.Debounce, r.throttledReload)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("file watcher error", "error", err)
		case <-r.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

// logChanges logs a summary of what changed between the old and new profile.
func (r *Reloader) logChanges(old, new *Config) {
	if old.Subject.UserID != new.Subject.UserID {
		r.logger.Info("subject changed", "old", old.Subject.UserID, "new", new.Subject.UserID)
	}
	if old.Signing.Validity != new.Signing.Validity {
		r.logger.Info("validity changed", "old", old.Signing.Validity, "new", new.Signing.Validity)
	}
	if old.Signing.Secret != new.Signing.Secret {
		r.logger.Info("signing secret changed")
	}
	if old.Target.TargetURL() != new.Target.TargetURL() {
		r.logger.Info("target changed", "old", old.Target.TargetURL(), "new", new.Target.TargetURL())
	}
}
