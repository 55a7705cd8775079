package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gekko3d/ahr"
)

// ConfigWatcher reloads a configuration file whenever it changes on disk and
// hands the result to apply. Parse errors are logged and the previous
// configuration stays in effect.
type ConfigWatcher struct {
	path    string
	apply   func(ahr.Config)
	log     ahr.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchConfig starts watching path. The directory is watched rather than the
// file so that editors replacing the file are seen too.
func WatchConfig(path string, log ahr.Logger, apply func(ahr.Config)) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	cw := &ConfigWatcher{
		path:    abs,
		apply:   apply,
		log:     log,
		watcher: w,
		done:    make(chan struct{}),
	}
	go cw.run()
	return cw, nil
}

func (cw *ConfigWatcher) run() {
	defer close(cw.done)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cw.reload()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warnf("config watcher: %v", err)
		}
	}
}

// reload skips empty files: writers truncate before they write, and the
// truncation arrives as its own event.
func (cw *ConfigWatcher) reload() {
	if fi, err := os.Stat(cw.path); err != nil || fi.Size() == 0 {
		return
	}
	cfg, err := ahr.LoadConfig(cw.path)
	if err != nil {
		cw.log.Errorf("reload %s: %v", cw.path, err)
		return
	}
	cw.log.Infof("reloaded %s", cw.path)
	cw.apply(cfg)
}

// Close stops the watcher and waits for its goroutine to exit.
func (cw *ConfigWatcher) Close() error {
	err := cw.watcher.Close()
	<-cw.done
	return err
}
