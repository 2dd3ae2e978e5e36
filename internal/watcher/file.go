package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dshills/sketchlink/internal/engine/schedule"
	"github.com/dshills/sketchlink/internal/logging"
)

// DefaultDebounce is how long the file must be quiet before it is reloaded.
const DefaultDebounce = 100 * time.Millisecond

// Reload reports one reload attempt.
type Reload struct {
	Path string
	Text string
	// Op combines every operation seen during the debounce window.
	Op Op
	// Changed is false when the contents matched the target's current text.
	Changed bool
	Err     error
}

// FileWatcher applies a file's contents to a Rewriter whenever it changes.
type FileWatcher struct {
	path string
	dir  string

	target    Rewriter
	source    Source
	scheduler schedule.Scheduler
	debounce  time.Duration
	readFile  func(string) ([]byte, error)
	logger    *logging.Logger
	onReload  func(Reload)

	mu        sync.Mutex
	scheduled bool
	token     schedule.Token
	gen       uint64
	ops       Op
	closed    bool
}

// Option configures a FileWatcher.
type Option func(*FileWatcher)

// WithSource sets the event source. The default is fsnotify.
func WithSource(s Source) Option {
	return func(w *FileWatcher) {
		w.source = s
	}
}

// WithScheduler sets the scheduler that runs the debounce.
func WithScheduler(s schedule.Scheduler) Option {
	return func(w *FileWatcher) {
		if s != nil {
			w.scheduler = s
		}
	}
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *FileWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *FileWatcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// OnReload registers a callback for every reload attempt.
func OnReload(fn func(Reload)) Option {
	return func(w *FileWatcher) {
		w.onReload = fn
	}
}

// New watches path and rewrites target when it changes. The file must exist.
func New(path string, target Rewriter, opts ...Option) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPathNotExist, path)
		}
		return nil, err
	}

	w := &FileWatcher{
		path:     abs,
		dir:      filepath.Dir(abs),
		target:   target,
		debounce: DefaultDebounce,
		readFile: os.ReadFile,
		logger:   logging.Null(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("watcher").WithField("path", abs)

	if w.scheduler == nil {
		w.scheduler = schedule.NewTimerScheduler()
	}
	if w.source == nil {
		src, err := NewFSNotifySource()
		if err != nil {
			return nil, err
		}
		w.source = src
	}
	if err := w.source.Add(w.dir); err != nil {
		_ = w.source.Close()
		return nil, err
	}

	return w, nil
}

// Path returns the absolute path being watched.
func (w *FileWatcher) Path() string {
	return w.path
}

// Run processes events until ctx is done or the source closes, then
// closes the watcher.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer w.Close()

	events := w.source.Events()
	errs := w.source.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("watch error: %v", err)
		}
	}
}

// handle schedules a reload for events on the watched file.
func (w *FileWatcher) handle(ev Event) {
	if filepath.Clean(ev.Path) != w.path || ev.Op == OpChmod {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.scheduled {
		w.scheduler.Cancel(w.token)
	}
	w.ops |= ev.Op
	w.scheduled = true
	w.gen++
	gen := w.gen
	w.token = w.scheduler.Schedule(w.debounce, func() { w.fire(gen) })
}

func (w *FileWatcher) fire(gen uint64) {
	w.mu.Lock()
	if !w.scheduled || w.closed || gen != w.gen {
		w.mu.Unlock()
		return
	}
	ops := w.ops
	w.scheduled = false
	w.ops = 0
	w.mu.Unlock()

	w.reload(ops)
}

// Reload reads the file now and applies it if it changed.
func (w *FileWatcher) Reload() error {
	w.mu.Lock()
	if w.scheduled {
		w.scheduler.Cancel(w.token)
		w.scheduled = false
	}
	ops := w.ops
	w.ops = 0
	w.mu.Unlock()

	return w.reload(ops).Err
}

func (w *FileWatcher) reload(ops Op) Reload {
	r := Reload{Path: w.path, Op: ops}

	data, err := w.readFile(w.path)
	switch {
	case err != nil:
		// A rename-on-save can leave the file briefly missing; the
		// following create event triggers another reload.
		r.Err = err
	case !utf8.Valid(data):
		r.Err = fmt.Errorf("%s is not valid UTF-8", w.path)
	default:
		r.Text = string(data)

		// Our own saves come back as events; they match the target already.
		r.Changed = w.target.Current() != r.Text
		if r.Changed {
			w.target.ExternalRewrite(r.Text)
			w.logger.Debug("reloaded %d bytes", len(data))
		}
	}

	if r.Err != nil {
		w.logger.Warn("reload failed: %v", r.Err)
	}
	if w.onReload != nil {
		w.onReload(r)
	}
	return r
}

// Close stops watching and cancels a pending reload.
func (w *FileWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.scheduled {
		w.scheduler.Cancel(w.token)
		w.scheduled = false
	}
	w.mu.Unlock()

	return w.source.Close()
}
