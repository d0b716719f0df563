package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// resourceWatcher delivers resources.yaml to onUpdate whenever the file's
// modification time moves past the last version it accepted.
type resourceWatcher struct {
	path     string
	logger   zerolog.Logger
	onUpdate func(*ResourcesConfig)
	accepted time.Time
}

// reload reports whether a new version was delivered. A file that fails
// validation is not accepted, so the last good config stays live and the
// next edit is picked up.
func (w *resourceWatcher) reload() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}
	if !info.ModTime().After(w.accepted) {
		return false, nil
	}

	cfg, err := LoadResourcesConfig(w.path)
	if err != nil {
		return false, err
	}
	w.accepted = info.ModTime()
	w.onUpdate(cfg)
	return true, nil
}

func (w *resourceWatcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := w.reload()
			switch {
			case err != nil:
				w.logger.Warn().Err(err).Str("path", w.path).Msg("resources config reload skipped")
			case changed:
				w.logger.Info().Str("path", w.path).Msg("resources config reloaded")
			}
		}
	}
}

// WatchResources loads resources.yaml once, synchronously, and then polls it
// every interval until ctx is done. The initial load must succeed.
func WatchResources(ctx context.Context, path string, interval time.Duration, logger zerolog.Logger, onUpdate func(*ResourcesConfig)) error {
	if path == "" {
		path = "configs/resources.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if onUpdate == nil {
		onUpdate = func(*ResourcesConfig) {}
	}

	w := &resourceWatcher{
		path:     path,
		logger:   logger.With().Str("component", "resources").Logger(),
		onUpdate: onUpdate,
	}
	if _, err := w.reload(); err != nil {
		return err
	}

	go w.run(ctx, interval)
	return nil
}
