// Package session tracks open diagram documents, each with its own
// independent undo history.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/sketchlink/internal/engine/history"
	"github.com/dshills/sketchlink/internal/engine/schedule"
	"github.com/dshills/sketchlink/internal/logging"
)

// Errors returned by Manager operations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many open sessions")
)

// Session is one open document.
type Session struct {
	// ID uniquely identifies the session.
	ID string

	// Created is when the session was opened.
	Created time.Time

	mu      sync.RWMutex
	name    string
	history *history.History
	unbind  func()

	lmu          sync.Mutex
	listeners    map[int]func(history.State)
	nextListener int
}

// Subscribe registers fn for state changes of whichever history the
// session currently holds, including the fresh state after a switch.
// The returned function removes the subscription.
func (s *Session) Subscribe(fn func(history.State)) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn

	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) notify(state history.State) {
	s.lmu.Lock()
	fns := make([]func(history.State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// bind makes h the session's history and returns the previous one.
func (s *Session) bind(name string, h *history.History) *history.History {
	unbind := h.Subscribe(s.notify)

	s.mu.Lock()
	old, oldUnbind := s.history, s.unbind
	s.history, s.unbind, s.name = h, unbind, name
	s.mu.Unlock()

	if oldUnbind != nil {
		oldUnbind()
	}
	return old
}

// Name returns the display name of the document.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// History returns the session's current history. It changes when the
// session is switched to another document.
func (s *Session) History() *history.History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}

// Info is a read-only summary of a session.
type Info struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Created time.Time     `json:"created"`
	State   history.State `json:"state"`
}

// Info returns a summary of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:      s.ID,
		Name:    s.name,
		Created: s.Created,
		State:   s.history.State(),
	}
}

// Options configures a Manager.
type Options struct {
	// QuietWindow is the typing debounce for every history.
	QuietWindow time.Duration
	// MaxEntries caps each history.
	MaxEntries int
	// MaxSessions bounds the number of open sessions. Zero means no limit.
	MaxSessions int
	// Scheduler, if set, is shared by every history. Otherwise each history
	// gets its own timer scheduler.
	Scheduler schedule.Scheduler
	// Logger receives lifecycle messages.
	Logger *logging.Logger
	// Now is the clock for session and snapshot timestamps.
	Now func() time.Time
}

// Manager owns open sessions. Sessions never share history.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
	logger   *logging.Logger
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.QuietWindow <= 0 {
		opts.QuietWindow = history.DefaultQuietWindow
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = history.DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Null()
	}

	return &Manager{
		sessions: make(map[string]*Session),
		opts:     opts,
		logger:   logger.WithComponent("session"),
	}
}

func (m *Manager) newHistory(seed string) *history.History {
	opts := []history.Option{
		history.WithQuietWindow(m.opts.QuietWindow),
		history.WithMaxEntries(m.opts.MaxEntries),
		history.WithClock(m.opts.Now),
	}
	if m.opts.Scheduler != nil {
		opts = append(opts, history.WithScheduler(m.opts.Scheduler))
	}
	return history.New(seed, opts...)
}

// Open creates a session for a document with a freshly seeded history.
func (m *Manager) Open(name, seed string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		return nil, ErrTooManySessions
	}

	s := &Session{
		ID:        uuid.New().String(),
		Created:   m.opts.Now(),
		listeners: make(map[int]func(history.State)),
	}
	s.bind(name, m.newHistory(seed))
	m.sessions[s.ID] = s

	m.logger.WithField("id", s.ID).Debug("opened %q", name)
	return s, nil
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Switch points a session at a different document. The old history is
// closed and discarded; the new one is seeded with seed.
func (m *Manager) Switch(id, name, seed string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	fresh := m.newHistory(seed)
	old := s.bind(name, fresh)
	old.Close()

	s.notify(fresh.State())
	m.logger.WithField("id", id).Debug("switched to %q", name)
	return s, nil
}

// Close discards a session and its history.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	s.History().Close()
	m.logger.WithField("id", id).Debug("closed")
	return nil
}

// CloseAll discards every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.History().Close()
	}
}

// List returns summaries of all sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, len(all))
	for i, s := range all {
		infos[i] = s.Info()
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Created.Equal(infos[j].Created) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].Created.Before(infos[j].Created)
	})
	return infos
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
