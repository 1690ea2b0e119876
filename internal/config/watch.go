package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// #region watcher

// Watcher calls a function after a file changes. Rapid saves within the
// debounce window collapse into one call.
type Watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// WatchFile watches the directory holding path so editors that replace the
// file on save are still seen.
func WatchFile(path string, debounce time.Duration, onChange func(), log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(target)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	w := &Watcher{fs: fw, done: make(chan struct{})}
	go w.run(target, debounce, onChange, log)
	return w, nil
}

func (w *Watcher) run(target string, debounce time.Duration, onChange func(), log *zap.Logger) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			log.Debug("watched file changed", zap.String("path", target))
			onChange()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn("file watcher error", zap.String("path", target), zap.Error(err))
		}
	}
}

// Close stops watching and waits for the loop to exit.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}

// #endregion watcher
