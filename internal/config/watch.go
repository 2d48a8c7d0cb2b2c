package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DebounceDelay is how long Watch waits after the last change event.
const DebounceDelay = 250 * time.Millisecond

// Watch calls onChange after any of paths is written, created, renamed or
// removed. Events are debounced so an editor's save sequence triggers a
// single call. The containing directories are watched so files created
// after startup are noticed. Watcher errors are logged and watching goes
// on. Watch returns when ctx is done.
func Watch(ctx context.Context, paths []string, log zerolog.Logger, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		// Missing directories are skipped; the others are still watched.
		if err := w.Add(dir); err == nil {
			dirs[dir] = true
		}
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no configuration directory to watch")
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(DebounceDelay, onChange)
	}
	defer func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
	}()

	watchLoop(ctx, w.Events, w.Errors, watched, log, debounce)
	return nil
}

func watchLoop(
	ctx context.Context,
	events <-chan fsnotify.Event,
	errs <-chan error,
	watched map[string]bool,
	log zerolog.Logger,
	changed func(),
) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !watched[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				changed()
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("configuration watcher error")
		}
	}
}
