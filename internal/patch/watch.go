package patch

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/mufanc/fpatch/pkg/errors"
)

// WatchConfig watches path's containing directory (editors typically replace
// rather than truncate-in-place, which fsnotify only reliably sees at the
// directory level) and sends once on changed whenever path itself is
// written, renamed onto or removed-then-recreated. It runs until ctx is
// canceled.
func WatchConfig(ctx context.Context, path string, changed chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStateDir, "create config watcher", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return errors.Wrap(errors.ErrCodeStateDir, "watch config dir", err).WithContext("dir", dir)
	}

	base := filepath.Base(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Warn("config watcher error")
			}
		}
	}()

	return nil
}
