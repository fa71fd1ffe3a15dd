package follow

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/lsn"
)

// DefaultPollInterval bounds how long Wait sleeps without a notification.
const DefaultPollInterval = time.Second

// Watcher reports activity in a WAL directory.
type Watcher struct {
	dir    string
	poll   time.Duration
	fsw    *fsnotify.Watcher
	logger log.Logger
}

// NewWatcher watches dir. It never fails: without fsnotify it polls.
func NewWatcher(dir string, poll time.Duration, logger log.Logger) *Watcher {
	if logger == nil {
		logger = log.Nop
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	w := &Watcher{dir: dir, poll: poll, logger: logger}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("fsnotify unavailable, polling wal directory", log.String("dir", dir), log.Err(err))
		return w
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		logger.Warn("cannot watch wal directory, polling", log.String("dir", dir), log.Err(err))
		return w
	}
	w.fsw = fsw
	logger.Debug("watching wal directory", log.String("dir", dir), log.Duration("poll", poll))
	return w
}

// Notifying reports whether change notifications are active.
func (w *Watcher) Notifying() bool { return w.fsw != nil }

// Wait blocks until a segment file changes, the poll interval passes or
// ctx is done. Only the last case returns an error.
func (w *Watcher) Wait(ctx context.Context) error {
	timer := time.NewTimer(w.poll)
	defer timer.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.fsw != nil {
		events, errs = w.fsw.Events, w.fsw.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !isSegment(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				return nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("wal directory watch error", log.String("dir", w.dir), log.Err(err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	w.fsw = nil
	return err
}

func isSegment(path string) bool {
	return lsn.IsSegmentFileName(filepath.Base(path))
}
