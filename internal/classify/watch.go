package classify

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Watch reloads the vocabulary at path into c whenever the file is written or
// replaced, until ctx is done. A table that fails to load is logged and the
// previous one stays in place.
func Watch(ctx context.Context, c *Classifier, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// editors often save by renaming a temp file over the target, so the
	// directory is watched rather than the file itself
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}
	target := filepath.Clean(path)
	go func() {
		defer w.Close()
		logger := logutil.GetLogger(ctx).With(zap.String("file", target))
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				table, err := LoadTable(target)
				if err != nil {
					logger.Warn("reload pattern table failed, keeping previous", zap.Error(err))
					continue
				}
				c.Swap(table)
				logger.Info("pattern table reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("pattern table watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
