package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/nself/content-acquisition/internal/xlog"
)

// Watch reloads the config file on change and invokes onReload with the
// newly resolved config. Sibling URLs in practice never change at runtime
// (per SPEC_FULL.md §EXPANSION "Configuration"), but thresholds like
// FuzzyMatchThreshold and poll intervals are safe to pick up live; callers
// that care about the distinction simply diff old vs new themselves.
func Watch(ctx context.Context, path string, onReload func(*Resolved)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()
		log := xlog.WithComponent("config")
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn().Err(err).Str("path", path).Msg("config reload failed, keeping previous config")
					continue
				}
				log.Info().Str("path", path).Msg("config reloaded")
				onReload(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()

	return nil
}
