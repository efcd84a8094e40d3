package policy

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the table whenever the policy file changes, until ctx is
// cancelled. A reload that fails to parse keeps the previous policies.
// Watch blocks; run it in its own goroutine.
func (t *Table) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	t.logger.Info("watching policy file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if err := t.LoadFile(path); err != nil {
				t.logger.Error("policy reload failed, keeping previous policies", "path", path, "err", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Error("policy watcher error", "err", err)
		}
	}
}
