package history

import (
	"sync"
	"time"

	"github.com/dshills/sketchlink/internal/engine/schedule"
)

// Defaults for a new History.
const (
	DefaultQuietWindow = 800 * time.Millisecond
	DefaultMaxEntries  = 1000
)

// History manages undo/redo state for one text buffer.
// All methods are safe for concurrent use.
type History struct {
	mu sync.Mutex

	snapshots []Snapshot
	cursor    int
	visible   string

	// Pending typing commit. generation changes on every schedule and
	// cancel so a callback that already fired can tell it is stale.
	pending     bool
	pendingText string
	pendingTok  schedule.Token
	generation  uint64

	closed bool

	listeners    map[int]func(State)
	nextListener int

	// Configuration
	scheduler   schedule.Scheduler
	quietWindow time.Duration
	maxEntries  int
	now         func() time.Time
}

// Option configures a History.
type Option func(*History)

// WithScheduler sets the scheduler that runs the quiet window.
func WithScheduler(s schedule.Scheduler) Option {
	return func(h *History) {
		if s != nil {
			h.scheduler = s
		}
	}
}

// WithQuietWindow sets how long typing must pause before a burst is committed.
func WithQuietWindow(d time.Duration) Option {
	return func(h *History) {
		if d > 0 {
			h.quietWindow = d
		}
	}
}

// WithMaxEntries caps the number of snapshots. The oldest are dropped first.
func WithMaxEntries(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.maxEntries = n
		}
	}
}

// WithClock sets the time source used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *History) {
		if now != nil {
			h.now = now
		}
	}
}

// New creates a history seeded with one snapshot and the cursor at 0.
func New(seed string, opts ...Option) *History {
	h := &History{
		quietWindow: DefaultQuietWindow,
		maxEntries:  DefaultMaxEntries,
		now:         time.Now,
		listeners:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.scheduler == nil {
		h.scheduler = schedule.NewTimerScheduler()
	}

	h.snapshots = []Snapshot{{Text: seed, Source: SourceSeed, Timestamp: h.now()}}
	h.visible = seed
	return h
}

// TextChanged records a keystroke-level change. The visible text updates
// immediately; the snapshot is committed once the quiet window passes with
// no further call. A newer call replaces the pending one.
func (h *History) TextChanged(text string) {
	h.mu.Lock()
	h.cancelPendingLocked()

	h.visible = text
	h.pending = true
	h.pendingText = text
	gen := h.generation

	if !h.closed {
		h.pendingTok = h.scheduler.Schedule(h.quietWindow, func() {
			h.commitPending(gen)
		})
	}
	h.unlockAndNotify()
}

// ExternalRewrite replaces the whole buffer and commits it immediately.
// A pending typing commit is discarded and leaves no trace.
func (h *History) ExternalRewrite(text string) {
	h.mu.Lock()
	h.cancelPendingLocked()
	h.commitLocked(text, SourceExternal)
	h.unlockAndNotify()
}

// Undo moves the cursor back one snapshot and makes it visible. At the
// first snapshot it does nothing and returns false.
func (h *History) Undo() bool {
	h.mu.Lock()
	if h.cursor == 0 {
		h.mu.Unlock()
		return false
	}
	h.cancelPendingLocked()
	h.cursor--
	h.visible = h.snapshots[h.cursor].Text
	h.unlockAndNotify()
	return true
}

// Redo moves the cursor forward one snapshot and makes it visible. At the
// last snapshot it does nothing and returns false.
func (h *History) Redo() bool {
	h.mu.Lock()
	if h.cursor == len(h.snapshots)-1 {
		h.mu.Unlock()
		return false
	}
	h.cancelPendingLocked()
	h.cursor++
	h.visible = h.snapshots[h.cursor].Text
	h.unlockAndNotify()
	return true
}

// Flush commits a pending typing burst now. It returns false if nothing
// was pending.
func (h *History) Flush() bool {
	h.mu.Lock()
	if !h.pending {
		h.mu.Unlock()
		return false
	}
	text := h.pendingText
	h.cancelPendingLocked()
	h.commitLocked(text, SourceTyping)
	h.unlockAndNotify()
	return true
}

// Reset discards all snapshots and re-seeds the history.
func (h *History) Reset(seed string) {
	h.mu.Lock()
	h.cancelPendingLocked()
	clear(h.snapshots)
	h.snapshots = []Snapshot{{Text: seed, Source: SourceSeed, Timestamp: h.now()}}
	h.cursor = 0
	h.visible = seed
	h.unlockAndNotify()
}

// Close cancels any pending commit and stops scheduling new ones. Typing
// after Close still updates the visible text and can be committed with Flush.
func (h *History) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pending {
		h.scheduler.Cancel(h.pendingTok)
		h.generation++
	}
	h.closed = true
}

// Current returns the visible text.
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visible
}

// CanUndo reports whether Undo would move the cursor.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor > 0
}

// CanRedo reports whether Redo would move the cursor.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.snapshots)-1
}

// Cursor returns the index of the current snapshot.
func (h *History) Cursor() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// Len returns the number of snapshots.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snapshots)
}

// Pending reports whether a typing burst is waiting to be committed.
func (h *History) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}

// Log returns a copy of all snapshots together with the cursor, read
// under one lock so the two always agree.
func (h *History) Log() ([]Snapshot, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Snapshot, len(h.snapshots))
	copy(out, h.snapshots)
	return out, h.cursor
}

// Snapshots returns a copy of all snapshots.
func (h *History) Snapshots() []Snapshot {
	snaps, _ := h.Log()
	return snaps
}

// State returns the derived view of the history.
func (h *History) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateLocked()
}

// Subscribe registers fn to be called with the new State after every
// change, including commits fired by the scheduler. Calls happen outside
// the history lock. The returned function removes the subscription.
func (h *History) Subscribe(fn func(State)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextListener
	h.nextListener++
	h.listeners[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners, id)
	}
}

// commitPending is the scheduler callback for a typing burst.
func (h *History) commitPending(gen uint64) {
	h.mu.Lock()
	if !h.pending || h.generation != gen {
		h.mu.Unlock()
		return
	}
	text := h.pendingText
	h.pending = false
	h.pendingText = ""
	h.commitLocked(text, SourceTyping)
	h.unlockAndNotify()
}

// cancelPendingLocked drops a pending typing commit.
func (h *History) cancelPendingLocked() {
	if !h.pending {
		return
	}
	if !h.closed {
		h.scheduler.Cancel(h.pendingTok)
	}
	h.pending = false
	h.pendingText = ""
	h.generation++
}

// commitLocked truncates after the cursor and appends text, so a commit
// always leaves the cursor at the tip. Text equal to the current snapshot
// is not stored twice.
func (h *History) commitLocked(text string, source Source) {
	h.visible = text
	clear(h.snapshots[h.cursor+1:])
	h.snapshots = h.snapshots[:h.cursor+1]
	if h.snapshots[h.cursor].Text == text {
		return
	}

	h.snapshots = append(h.snapshots, Snapshot{
		Text:      text,
		Source:    source,
		Timestamp: h.now(),
	})
	h.cursor++

	if excess := len(h.snapshots) - h.maxEntries; excess > 0 {
		h.snapshots = append([]Snapshot(nil), h.snapshots[excess:]...)
		h.cursor -= excess
	}
}

func (h *History) stateLocked() State {
	return State{
		Text:    h.visible,
		Cursor:  h.cursor,
		Len:     len(h.snapshots),
		CanUndo: h.cursor > 0,
		CanRedo: h.cursor < len(h.snapshots)-1,
		Pending: h.pending,
	}
}

// unlockAndNotify releases the lock and delivers the new state.
func (h *History) unlockAndNotify() {
	state := h.stateLocked()
	var fns []func(State)
	if len(h.listeners) > 0 {
		fns = make([]func(State), 0, len(h.listeners))
		for _, fn := range h.listeners {
			fns = append(fns, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
