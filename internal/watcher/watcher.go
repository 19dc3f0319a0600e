package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
)

// Watcher observes a directory tree recursively and forwards classified
// events to a handler.
type Watcher struct {
	root    string
	ignore  []string
	handler EventHandler
	clock   clockwork.Clock
	logger  *slog.Logger

	fs    *fsnotify.Watcher
	dirs  map[string]struct{}
	ready chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithIgnore sets path segments that are neither watched nor reported.
func WithIgnore(segments ...string) Option {
	return func(w *Watcher) { w.ignore = segments }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

func WithEventClock(c clockwork.Clock) Option {
	return func(w *Watcher) { w.clock = c }
}

// New creates a watcher for root. The root must be an existing directory.
func New(root string, handler EventHandler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, ferrors.ValidationError("event handler is required").Build()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve watch root").
			WithContext("root", root).Build()
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "watch root not accessible").
			WithContext("root", abs).Build()
	}
	if !fi.IsDir() {
		return nil, ferrors.ValidationError("watch root is not a directory").
			WithContext("root", abs).Build()
	}

	w := &Watcher{
		root:    abs,
		handler: handler,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		dirs:    make(map[string]struct{}),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logfields.Root(abs))
	return w, nil
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string { return w.root }

// Ready is closed once the initial recursive watch is in place.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is done. fsnotify errors are logged and do not stop
// the loop.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create fsnotify watcher").Build()
	}
	defer func() { _ = fsw.Close() }()
	w.fs = fsw

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.logger.Info("Watching for changes", slog.Int("dirs", len(w.dirs)))
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Watcher stopped")
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}
	e, ok := w.classify(ev)
	if !ok {
		return
	}
	w.logger.Debug("File change detected", logfields.Path(e.Path), logfields.Op(string(e.Kind)))
	w.handler.HandleEvent(e)
}

// classify maps an fsnotify event to an Event. Chmod-only events are dropped.
func (w *Watcher) classify(ev fsnotify.Event) (Event, bool) {
	e := Event{Path: ev.Name, At: w.clock.Now()}

	switch {
	case ev.Has(fsnotify.Create):
		e.Kind = KindCreated
		if isDir(ev.Name) {
			e.Kind = KindDirChanged
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", logfields.Path(ev.Name), logfields.Error(err))
			}
		}
	case ev.Has(fsnotify.Write):
		e.Kind = KindModified
		if isDir(ev.Name) {
			e.Kind = KindDirChanged
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		e.Kind = KindDeleted
		if _, wasDir := w.dirs[ev.Name]; wasDir {
			e.Kind = KindDirChanged
			w.forget(ev.Name)
		}
	default:
		return Event{}, false
	}
	return e, true
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == w.root {
				return ferrors.WrapError(err, ferrors.CategoryFileSystem, "walk watch root").
					WithContext("root", w.root).Build()
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
			return nil
		}
		w.dirs[path] = struct{}{}
		return nil
	})
}

// forget drops bookkeeping for dir and everything below it. fsnotify removes
// the kernel watches itself.
func (w *Watcher) forget(dir string) {
	prefix := dir + string(filepath.Separator)
	for p := range w.dirs {
		if p == dir || strings.HasPrefix(p, prefix) {
			delete(w.dirs, p)
		}
	}
}

func (w *Watcher) ignored(path string) bool {
	if len(w.ignore) == 0 {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		if slices.Contains(w.ignore, seg) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
