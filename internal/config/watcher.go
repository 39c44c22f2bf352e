package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config file on change and delivers the parsed
// result to subscribers. A file that fails to parse or validate is
// skipped; the previous config stays in effect.
type Watcher struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	ch      chan *Config

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher watches the given config file. The containing directory
// is watched rather than the file itself so editors that replace the
// file via rename keep triggering reloads.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}

	w := &Watcher{
		path:    path,
		logger:  logger,
		watcher: fsw,
		ch:      make(chan *Config, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Changes returns the channel of reloaded configs.
func (w *Watcher) Changes() <-chan *Config {
	return w.ch
}

func (w *Watcher) run() {
	defer close(w.ch)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("ignoring invalid config reload", zap.Error(err))
				continue
			}

			// Keep only the latest pending config.
			select {
			case w.ch <- cfg:
			default:
				select {
				case <-w.ch:
				default:
				}
				w.ch <- cfg
			}
			w.logger.Info("config reloaded", zap.String("path", w.path))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}

// Close stops watching. The Changes channel is closed afterwards.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
