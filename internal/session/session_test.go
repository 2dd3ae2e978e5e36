package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/dshills/sketchlink/internal/engine/history"
	"github.com/dshills/sketchlink/internal/engine/schedule"
)

var epoch = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newTestManager(max int) (*Manager, *schedule.Manual) {
	sched := schedule.NewManual(epoch)
	return NewManager(Options{
		QuietWindow: 800 * time.Millisecond,
		MaxSessions: max,
		Scheduler:   sched,
		Now:         sched.Now,
	}), sched
}

func TestOpenAndGet(t *testing.T) {
	m, _ := newTestManager(0)

	s, err := m.Open("flow.mmd", "graph TD")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		t.Errorf("session ID %q is not a UUID: %v", s.ID, err)
	}
	if s.Name() != "flow.mmd" {
		t.Errorf("Name() = %q", s.Name())
	}
	if got := s.History().Current(); got != "graph TD" {
		t.Errorf("Current() = %q", got)
	}

	got, err := m.Get(s.ID)
	if err != nil || got != s {
		t.Errorf("Get() = %v, %v", got, err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestSessionsDoNotShareHistory(t *testing.T) {
	m, sched := newTestManager(0)
	a, _ := m.Open("a", "A")
	b, _ := m.Open("b", "B")

	a.History().TextChanged("A1")
	b.History().ExternalRewrite("B1")
	sched.Advance(time.Second)

	if a.History().Len() != 2 || b.History().Len() != 2 {
		t.Fatalf("lens = %d, %d", a.History().Len(), b.History().Len())
	}
	b.History().Undo()
	if a.History().Current() != "A1" {
		t.Errorf("undo in b affected a: %q", a.History().Current())
	}
}

func TestSwitchDiscardsHistory(t *testing.T) {
	m, sched := newTestManager(0)
	s, _ := m.Open("one", "first")
	old := s.History()
	old.ExternalRewrite("first v2")
	old.TextChanged("first v3")

	if _, err := m.Switch(s.ID, "two", "second"); err != nil {
		t.Fatalf("Switch failed: %v", err)
	}
	sched.Advance(time.Second)

	h := s.History()
	if h == old {
		t.Fatal("Switch reused the old history")
	}
	if h.Len() != 1 || h.Current() != "second" || h.CanUndo() {
		t.Errorf("switched history state = %+v", h.State())
	}
	if s.Name() != "two" {
		t.Errorf("Name() = %q", s.Name())
	}
	if old.Len() != 2 {
		t.Errorf("pending typing committed into discarded history: %d", old.Len())
	}

	if _, err := m.Switch("missing", "x", "y"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Switch(missing) error = %v", err)
	}
}

func TestClose(t *testing.T) {
	m, sched := newTestManager(0)
	s, _ := m.Open("doc", "A")
	s.History().TextChanged("AB")

	if err := m.Close(s.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if sched.Pending() != 0 {
		t.Errorf("Close left %d timers", sched.Pending())
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d", m.Count())
	}
	if err := m.Close(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Close error = %v", err)
	}
}

func TestMaxSessions(t *testing.T) {
	m, _ := newTestManager(2)
	a, _ := m.Open("a", "")
	if _, err := m.Open("b", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Open("c", ""); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("third Open error = %v", err)
	}

	_ = m.Close(a.ID)
	if _, err := m.Open("c", ""); err != nil {
		t.Errorf("Open after Close failed: %v", err)
	}
}

func TestListOrder(t *testing.T) {
	m, sched := newTestManager(0)
	first, _ := m.Open("first", "1")
	sched.Advance(time.Second)
	second, _ := m.Open("second", "2")

	infos := m.List()
	if len(infos) != 2 {
		t.Fatalf("List() returned %d sessions", len(infos))
	}
	if infos[0].ID != first.ID || infos[1].ID != second.ID {
		t.Errorf("List() order = %s, %s", infos[0].Name, infos[1].Name)
	}
	if infos[1].State.Text != "2" {
		t.Errorf("info state = %+v", infos[1].State)
	}

	m.CloseAll()
	if m.Count() != 0 {
		t.Errorf("Count() after CloseAll = %d", m.Count())
	}
}

func TestSubscribeFollowsSwitch(t *testing.T) {
	m, sched := newTestManager(0)
	s, _ := m.Open("one", "first")
	old := s.History()

	var texts []string
	unsubscribe := s.Subscribe(func(st history.State) {
		texts = append(texts, st.Text)
	})

	old.ExternalRewrite("first v2")
	m.Switch(s.ID, "two", "second")
	old.ExternalRewrite("ignored")
	s.History().TextChanged("second v2")
	sched.Advance(time.Second)

	want := []string{"first v2", "second", "second v2", "second v2"}
	if diff := cmp.Diff(want, texts); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}

	unsubscribe()
	s.History().ExternalRewrite("after")
	if len(texts) != len(want) {
		t.Errorf("notified after unsubscribe: %v", texts)
	}
}
