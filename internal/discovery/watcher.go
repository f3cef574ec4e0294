package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval is the quiet period after a filesystem event before a
// discovery round is requested, so a burst of session-file writes turns
// into one round.
const debounceInterval = 100 * time.Millisecond

// Watcher turns session-directory changes into immediate discovery rounds,
// closing the gap between "worker session appears" and the next poll tick.
// Only usable when sessions live on the local filesystem.
type Watcher struct {
	dir    string
	poller *Poller
}

func NewWatcher(dir string, poller *Poller) *Watcher {
	return &Watcher{
		dir:    dir,
		poller: poller,
	}
}

// Run watches the session directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	slog.Info("session watcher started", "dir", w.dir)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		var debounceC <-chan time.Time
		if debounce != nil {
			debounceC = debounce.C
		}
		select {
		case <-ctx.Done():
			slog.Info("session watcher stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceInterval)
			} else {
				debounce.Reset(debounceInterval)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("session watcher error", "error", err)
		case <-debounceC:
			debounce = nil
			w.poller.Kick()
		}
	}
}
