// Package schedule provides the cancellable-timer capability that the
// history manager uses for its quiet window.
//
// Two implementations are provided: TimerScheduler runs callbacks on real
// timers, Manual runs them when its virtual clock is advanced.
package schedule

import (
	"sync"
	"time"
)

// Token identifies a scheduled callback. The zero Token is never issued.
type Token uint64

// Scheduler runs a callback once after a delay unless it is cancelled first.
type Scheduler interface {
	// Schedule arranges for fn to run once after delay.
	Schedule(delay time.Duration, fn func()) Token

	// Cancel prevents the callback from running. It returns false if the
	// callback already ran, is running, or was already cancelled.
	Cancel(tok Token) bool
}

// TimerScheduler implements Scheduler with time.AfterFunc.
// Callbacks run on their own goroutine.
type TimerScheduler struct {
	mu     sync.Mutex
	next   Token
	timers map[Token]*time.Timer
}

// NewTimerScheduler creates a scheduler backed by real timers.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[Token]*time.Timer),
	}
}

// Schedule arranges for fn to run after delay.
func (s *TimerScheduler) Schedule(delay time.Duration, fn func()) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	tok := s.next

	// The callback takes the lock, so it cannot observe the map before the
	// timer is registered below.
	s.timers[tok] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[tok]
		delete(s.timers, tok)
		s.mu.Unlock()

		if live {
			fn()
		}
	})

	return tok
}

// Cancel stops a pending callback.
func (s *TimerScheduler) Cancel(tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[tok]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, tok)
	return true
}

// Pending returns the number of callbacks waiting to run.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending callback.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tok, t := range s.timers {
		t.Stop()
		delete(s.timers, tok)
	}
}

// Ensure TimerScheduler implements Scheduler.
var _ Scheduler = (*TimerScheduler)(nil)
