package feed

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches a feed directory and invokes a callback with the events
// loaded from each CSV file dropped into it.
type Watcher struct {
	dir    string
	loader *Loader
	logger zerolog.Logger
}

// NewWatcher creates a watcher over the given feed directory.
func NewWatcher(dir string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		dir:    dir,
		loader: NewLoader(logger),
		logger: logger.With().Str("component", "feed_watcher").Logger(),
	}
}

// Watch blocks until the context is cancelled, invoking handle for every
// CSV file created or rewritten under the watched directory.
func (w *Watcher) Watch(ctx context.Context, handle func(ctx context.Context, path string, events []Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info().Str("dir", w.dir).Msg("Watching feed directory")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if strings.ToLower(filepath.Ext(event.Name)) != ".csv" {
				continue
			}
			w.logger.Info().Str("file", event.Name).Msg("New feed file detected")

			events, err := w.loader.LoadFile(event.Name)
			if err != nil {
				w.logger.Error().Err(err).Str("file", event.Name).Msg("Failed to load feed file")
				continue
			}
			handle(ctx, event.Name, events)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Feed watcher error")

		case <-ctx.Done():
			w.logger.Info().Msg("Feed watcher received shutdown signal")
			return ctx.Err()
		}
	}
}
