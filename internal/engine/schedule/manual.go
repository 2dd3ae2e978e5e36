package schedule

import (
	"sync"
	"time"
)

type manualTask struct {
	due time.Time
	fn  func()
}

// Manual is a Scheduler driven by a virtual clock. Nothing runs until
// Advance is called, which makes debounce behavior deterministic in tests
// and in hosts that replay recorded input.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	next  Token
	tasks map[Token]manualTask
}

// NewManual creates a manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:   start,
		tasks: make(map[Token]manualTask),
	}
}

// Schedule registers fn to run once the clock reaches now+delay.
func (m *Manual) Schedule(delay time.Duration, fn func()) Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	m.tasks[m.next] = manualTask{due: m.now.Add(delay), fn: fn}
	return m.next
}

// Cancel removes a pending callback.
func (m *Manual) Cancel(tok Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[tok]; !ok {
		return false
	}
	delete(m.tasks, tok)
	return true
}

// Advance moves the clock forward by d and runs every callback that falls
// due, in due order (ties in scheduling order). Callbacks run without the
// scheduler lock held and may schedule further callbacks; those also run if
// they fall due before the new time. It returns the number of callbacks run.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	ran := 0
	for {
		m.mu.Lock()
		tok, task, ok := m.earliestLocked(target)
		if !ok {
			m.now = target
			m.mu.Unlock()
			return ran
		}
		delete(m.tasks, tok)
		m.now = task.due
		m.mu.Unlock()

		task.fn()
		ran++
	}
}

func (m *Manual) earliestLocked(limit time.Time) (Token, manualTask, bool) {
	var (
		bestTok  Token
		bestTask manualTask
		found    bool
	)
	for tok, task := range m.tasks {
		if task.due.After(limit) {
			continue
		}
		if !found || task.due.Before(bestTask.due) || (task.due.Equal(bestTask.due) && tok < bestTok) {
			bestTok, bestTask, found = tok, task, true
		}
	}
	return bestTok, bestTask, found
}

// Now returns the current virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of callbacks waiting to run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Ensure Manual implements Scheduler.
var _ Scheduler = (*Manual)(nil)
