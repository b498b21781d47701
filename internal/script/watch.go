package script

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads path whenever it is written and passes the result to
// onChange. The directory is watched rather than the file so editors that
// replace the file on save are handled. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Script, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("script changed", "path", abs, "op", event.Op)
			onChange(Load(abs))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("script watcher", "err", err)
		}
	}
}
