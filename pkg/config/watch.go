package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/heysubinoy/pyazwatch/pkg/log"
)

// Watch reloads the config file at path whenever it is written or
// replaced and passes the result to onChange. Invalid files are reported
// to logger and skipped. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file itself so that
// editors replacing the file atomically are picked up.
func Watch(ctx context.Context, path string, logger log.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = log.Nop{}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadConfig(abs)
			if err != nil {
				logger.Log(log.LevelWarn, "Config reload failed", log.Fields{"path": abs, "error": err.Error()})
				continue
			}
			logger.Log(log.LevelInfo, "Config reloaded", log.Fields{"path": abs})
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log(log.LevelWarn, "Config watcher error", log.Fields{"error": err.Error()})
		}
	}
}
