// Package watch nudges route workers as soon as files land in their
// inboxes. It is a latency optimization only; workers still poll, so a
// lost event or a failed watcher degrades to polling instead of losing
// files.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"dcmrelay/internal/logging"
)

// Waker receives inbox activity hints. relay.Worker satisfies this.
type Waker interface {
	Wake()
}

type target struct {
	dir   string
	waker Waker
}

// Watcher maps inbox trees to wakers and forwards filesystem events.
type Watcher struct {
	logger  *slog.Logger
	fs      *fsnotify.Watcher
	targets []target
	wg      sync.WaitGroup
}

// New builds a watcher. Callers register inboxes with Watch, then call
// Start.
func New(logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		logger: logging.NewComponentLogger(logger, "watch"),
		fs:     fs,
	}, nil
}

// Watch registers an inbox tree for the waker. Existing subdirectories
// are watched too. Must be called before Start.
func (w *Watcher) Watch(dir string, waker Waker) error {
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	w.targets = append(w.targets, target{dir: dir, waker: waker})
	return filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil || !entry.IsDir() || path == dir {
			return nil
		}
		if addErr := w.fs.Add(path); addErr != nil {
			w.logger.Warn("failed to watch inbox subdirectory",
				logging.Error(addErr),
				logging.String("dir", path),
				logging.String(logging.FieldEventType, "watch_add_failed"),
			)
		}
		return nil
	})
}

// Start launches the event loop.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop closes the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	_ = w.fs.Close()
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watch error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "watch_error"),
			)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	if event.Op.Has(fsnotify.Create) {
		// storescp may create study subdirectories; watch them as they
		// appear so deeper files still produce hints.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if addErr := w.fs.Add(event.Name); addErr != nil {
				w.logger.Warn("failed to watch new inbox subdirectory",
					logging.Error(addErr),
					logging.String("dir", event.Name),
					logging.String(logging.FieldEventType, "watch_add_failed"),
				)
			}
		}
	}
	w.wakeOwner(event.Name)
}

func (w *Watcher) wakeOwner(path string) {
	for _, t := range w.targets {
		if path == t.dir || strings.HasPrefix(path, t.dir+string(filepath.Separator)) {
			t.waker.Wake()
			return
		}
	}
}
