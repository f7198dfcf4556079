package config

import (
	"sync"

	"cointrade/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeListener receives the full new config after a successful reload.
type ChangeListener func(*Config)

// Watcher keeps a Config current by watching its file for edits. Reloads
// that fail to parse or validate are logged and dropped; the previous config
// stays in effect.
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	current   *Config
	listeners []ChangeListener
}

// NewWatcher loads path once and starts watching it. Include files are
// resolved at every reload, but only the top-level file is watched.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	w := &Watcher{path: path, v: v, current: cfg}
	v.OnConfigChange(func(evt fsnotify.Event) {
		next, err := Load(w.path)
		if err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		w.mu.Lock()
		w.current = next
		listeners := append([]ChangeListener(nil), w.listeners...)
		w.mu.Unlock()
		logger.Infof("config reloaded from %s", evt.Name)
		applyLogLevel(next)
		for _, fn := range listeners {
			fn(next)
		}
	})
	v.WatchConfig()
	return w, nil
}

// Current returns the latest valid config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers a listener for future reloads.
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func applyLogLevel(cfg *Config) {
	logger.SetLevel(cfg.App.LogLevel)
}
