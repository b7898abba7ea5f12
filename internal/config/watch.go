package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openworld-xr/interface/internal/monitoring"
)

// watchDebounce coalesces the burst of events editors produce on save.
const watchDebounce = 100 * time.Millisecond

// Watch reloads the tuning file whenever it changes on disk and calls onChange
// with the validated result. Invalid files are logged and skipped so the last
// good configuration stays in effect. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file so that atomic
// rename-on-save keeps working.
func Watch(ctx context.Context, path string, onChange func(*TuningConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	clean := filepath.Clean(path)
	if err := w.Add(filepath.Dir(clean)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(clean), err)
	}

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != clean {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			timerCh = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			monitoring.Logf("config watch error: %v", err)
		case <-timerCh:
			timerCh = nil
			cfg, err := LoadTuningConfig(clean)
			if err != nil {
				monitoring.Logf("ignoring tuning reload: %v", err)
				continue
			}
			monitoring.Logf("reloaded tuning config from %s", clean)
			onChange(cfg)
		}
	}
}
