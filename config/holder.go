// Package config provides configuration loading and hot reload.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// settleDelay coalesces the burst of events an editor save produces into
// one reload.
const settleDelay = 100 * time.Millisecond

// Holder serves the current configuration and replaces its reloadable
// settings when the file changes.
type Holder struct {
	path   string
	logger zerolog.Logger

	mu       sync.RWMutex
	current  *Config
	changed  []func(*Config)
	reloaded []func(error)

	// reloading serializes Reload so diffs are taken against the
	// configuration they replace.
	reloading sync.Mutex

	watcher *fsnotify.Watcher
	done    chan struct{}
	stop    sync.Once
}

// NewHolder loads path and returns a holder for it.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}
	cfg, err := Load(abs)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &Holder{
		path:    abs,
		logger:  logger.With().Str("config", abs).Logger(),
		current: cfg,
		done:    make(chan struct{}),
	}, nil
}

// Get returns the current configuration. Callers must not modify it.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnChange registers fn to receive the configuration after each
// successful reload.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	h.changed = append(h.changed, fn)
	h.mu.Unlock()
}

// OnReload registers fn to receive the outcome of every reload attempt.
func (h *Holder) OnReload(fn func(error)) {
	h.mu.Lock()
	h.reloaded = append(h.reloaded, fn)
	h.mu.Unlock()
}

// Reload re-reads the file and swaps in its reloadable settings. Changes
// to other settings are logged and ignored until restart. A file that
// fails to load or validate leaves the current configuration in place.
func (h *Holder) Reload() error {
	h.reloading.Lock()
	defer h.reloading.Unlock()

	next, err := Load(h.path)
	if err != nil {
		err = fmt.Errorf("reload config: %w", err)
		h.logger.Error().Err(err).Msg("keeping current configuration")
		h.announce(nil, err)
		return err
	}

	prev := h.Get()
	merged := mergeReloadable(prev, next)
	h.mu.Lock()
	h.current = merged
	h.mu.Unlock()

	applied := 0
	for _, c := range Diff(prev, next) {
		ev := h.logger.Info()
		msg := "setting changed"
		if !c.Reloadable {
			ev = h.logger.Warn()
			msg = "setting requires a restart, ignored"
		} else {
			applied++
		}
		ev.Str("field", c.Field).Str("old", c.Old).Str("new", c.New).Msg(msg)
	}
	h.logger.Info().Int("applied", applied).Msg("configuration reloaded")

	h.announce(merged, nil)
	return nil
}

// announce calls the change listeners with cfg, when non-nil, and then the
// reload listeners with err.
func (h *Holder) announce(cfg *Config, err error) {
	h.mu.RLock()
	changed := append([]func(*Config){}, h.changed...)
	reloaded := append([]func(error){}, h.reloaded...)
	h.mu.RUnlock()

	if cfg != nil {
		for _, fn := range changed {
			fn(cfg)
		}
	}
	for _, fn := range reloaded {
		fn(err)
	}
}

// WatchFile reloads when the file is written or replaced. The directory is
// watched so saves that rename a temporary file over the original are seen.
func (h *Holder) WatchFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch config: %w", err)
	}
	h.watcher = w
	go h.watch(w)
	h.logger.Info().Msg("watching configuration file")
	return nil
}

func (h *Holder) watch(w *fsnotify.Watcher) {
	var settle *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(h.path) || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			h.logger.Debug().Str("op", ev.Op.String()).Msg("configuration file changed")
			if settle == nil {
				settle = time.AfterFunc(settleDelay, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				settle.Reset(settleDelay)
			}
		case <-fire:
			if err := h.Reload(); err != nil {
				h.logger.Error().Err(err).Msg("file watch reload failed")
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("configuration watcher")
		case <-h.done:
			return
		}
	}
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-hup:
				h.logger.Info().Msg("SIGHUP received")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.done:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stop.Do(func() {
		close(h.done)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}
