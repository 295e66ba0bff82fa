package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads a catalog file whenever it changes on disk
type Watcher struct {
	source   FileSource
	onLoad   func(ctx context.Context, cat *Catalog) error
	debounce time.Duration
	log      logrus.FieldLogger
}

// NewWatcher creates a watcher for path. onLoad is called with every catalog
// that loads cleanly; invalid files are logged and skipped.
func NewWatcher(path string, onLoad func(ctx context.Context, cat *Catalog) error, log logrus.FieldLogger) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Watcher{
		source:   FileSource{Path: filepath.Clean(path)},
		onLoad:   onLoad,
		debounce: 500 * time.Millisecond,
		log:      log.WithField("catalog", path),
	}
}

// Run watches until ctx is done. The parent directory is watched because
// editors and config management usually replace the file instead of writing
// it in place.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.source.Path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.source.Path, err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.source.Path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			w.reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("Catalog watcher error")
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cat, err := w.source.Fetch(ctx)
	if err != nil {
		w.log.WithError(err).Error("Failed to reload catalog")
		return
	}
	if err := w.onLoad(ctx, cat); err != nil {
		w.log.WithError(err).Error("Failed to apply catalog")
		return
	}
	w.log.WithFields(logrus.Fields{
		"pricings": len(cat.Pricings),
		"coupons":  len(cat.Coupons),
	}).Info("Catalog reloaded")
}
