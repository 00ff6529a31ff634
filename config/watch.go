package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kjk/phonebook/log"
)

// editors often write a file in several steps so we wait for things to settle
const reloadDelay = 100 * time.Millisecond

// Watch calls fn with re-loaded config every time the file at path changes,
// until ctx is cancelled. Invalid configs are logged and ignored.
//
// We watch the directory, not the file, because many editors save
// by writing a new file and renaming it over the old one.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return err
	}

	d := &debouncer{Timeout: reloadDelay}
	reload := func() {
		c, err := Load(path)
		if err != nil {
			log.Errorf("config: failed to reload '%s': %s\n", path, err)
			return
		}
		log.Logf("config: reloaded '%s'\n", path)
		fn(c)
	}

	go func() {
		defer func() { _ = w.Close() }()
		defer d.stop()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					d.debounce(reload)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Logf("config: error watching '%s': %s\n", path, err)
			}
		}
	}()
	return nil
}
