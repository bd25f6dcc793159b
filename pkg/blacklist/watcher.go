package blacklist

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const reloadDebounce = 100 * time.Millisecond

// Watch reloads the blacklist from path whenever the file changes, until ctx is done
// The parent directory is watched so editors that replace the file by rename are picked up
// Bursts of events are collapsed into one reload after reloadDebounce of quiet
// A file that fails to parse keeps the previous rules in place
func (b *Blacklist) Watch(ctx context.Context, path string, log *logrus.Entry) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to resolve blacklist path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch blacklist directory: %w", err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		debounce := time.NewTimer(time.Hour)
		debounce.Stop()
		defer debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-debounce.C:
				fresh, err := Load(absPath)
				if err != nil {
					log.Warnf("Blacklist reload failed, keeping previous rules: %v", err)
					continue
				}
				b.Replace(fresh)
				log.Infof("Blacklist reloaded: %d crawler rules", b.Size(CategoryCrawler))
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				debounce.Reset(reloadDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("Blacklist watcher error: %v", err)
			}
		}
	}()
	return nil
}
