package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultPollInterval is the daemon's default auto-sync cadence, matching
// the teacher's defaultPollInterval in internal/config/defaults.go.
const defaultPollInterval = 5 * time.Minute

// saveDebounce is §4.11's "optional on-save debounced trigger (1 s)".
const saveDebounce = 1 * time.Second

// RunDaemon blocks, driving Sync on a periodic timer and, when watchRoot
// is non-empty, on a debounced fsnotify watch of the vault directory
// (the syncOnSave trigger). Returns when ctx is cancelled.
func (o *Orchestrator) RunDaemon(ctx context.Context, pollInterval time.Duration, watchRoot string) error {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	var watchEvents <-chan fsnotify.Event
	if watchRoot != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()

		if err := watcher.Add(watchRoot); err != nil {
			o.Logger.Warn("orchestrator: watching vault root failed", slog.String("root", watchRoot), slog.Any("error", err))
		} else {
			watchEvents = watcher.Events
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var debounce *time.Timer

	runOnce := func(reason string) {
		if o.Paused() {
			o.Logger.Debug("orchestrator: auto-sync trigger rejected, vault paused", slog.String("reason", reason))
			return
		}

		if _, err := o.Sync(ctx); err != nil {
			o.Logger.Error("orchestrator: auto-sync run failed", slog.String("reason", reason), slog.Any("error", err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			runOnce("poll")

		case ev, ok := <-watchEvents:
			if !ok {
				watchEvents = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(saveDebounce, func() { runOnce("on-save") })
		}
	}
}
