package schedule

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func TestManualAdvance(t *testing.T) {
	m := NewManual(epoch)
	var order []string

	m.Schedule(300*time.Millisecond, func() { order = append(order, "c") })
	m.Schedule(100*time.Millisecond, func() { order = append(order, "a") })
	m.Schedule(200*time.Millisecond, func() { order = append(order, "b") })

	if n := m.Advance(99 * time.Millisecond); n != 0 {
		t.Fatalf("Advance(99ms) ran %d callbacks", n)
	}
	if n := m.Advance(151 * time.Millisecond); n != 2 {
		t.Fatalf("Advance to 250ms ran %d callbacks, want 2", n)
	}
	if m.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", m.Pending())
	}
	m.Advance(time.Second)

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if got := m.Now(); !got.Equal(epoch.Add(1250 * time.Millisecond)) {
		t.Errorf("Now() = %v", got)
	}
}

func TestManualTiesRunInScheduleOrder(t *testing.T) {
	m := NewManual(epoch)
	var order []int
	for i := 0; i < 5; i++ {
		m.Schedule(time.Second, func() { order = append(order, i) })
	}
	m.Advance(time.Second)
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v", order)
		}
	}
}

func TestManualCancel(t *testing.T) {
	m := NewManual(epoch)
	fired := false
	tok := m.Schedule(time.Second, func() { fired = true })

	if !m.Cancel(tok) {
		t.Fatal("Cancel() = false for a pending callback")
	}
	if m.Cancel(tok) {
		t.Error("second Cancel() = true")
	}
	m.Advance(time.Hour)
	if fired {
		t.Error("cancelled callback ran")
	}
}

func TestManualNestedSchedule(t *testing.T) {
	m := NewManual(epoch)
	count := 0
	m.Schedule(10*time.Millisecond, func() {
		count++
		m.Schedule(10*time.Millisecond, func() { count++ })
	})

	if n := m.Advance(25 * time.Millisecond); n != 2 {
		t.Errorf("Advance ran %d callbacks, want 2", n)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestTimerSchedulerRuns(t *testing.T) {
	s := NewTimerScheduler()
	done := make(chan struct{})
	s.Schedule(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not run")
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after run", s.Pending())
	}
}

func TestTimerSchedulerCancel(t *testing.T) {
	s := NewTimerScheduler()
	var fired atomic.Bool
	tok := s.Schedule(50*time.Millisecond, func() { fired.Store(true) })

	if !s.Cancel(tok) {
		t.Fatal("Cancel() = false for a pending callback")
	}
	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Error("cancelled callback ran")
	}
	if s.Cancel(tok) {
		t.Error("Cancel() after cancel = true")
	}
}

func TestTimerSchedulerStop(t *testing.T) {
	s := NewTimerScheduler()
	var fired atomic.Int32
	for i := 0; i < 3; i++ {
		s.Schedule(50*time.Millisecond, func() { fired.Add(1) })
	}
	s.Stop()
	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("%d callbacks ran after Stop", fired.Load())
	}
}
