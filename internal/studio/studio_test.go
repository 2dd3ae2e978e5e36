package studio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/sketchlink/internal/engine/history"
	"github.com/dshills/sketchlink/internal/engine/schedule"
	"github.com/dshills/sketchlink/internal/share"
)

var epoch = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newTestStudio(t *testing.T, seed string, opts Options) (*Studio, *history.History, *schedule.Manual, tcell.SimulationScreen) {
	t.Helper()
	sched := schedule.NewManual(epoch)
	doc := history.New(seed,
		history.WithScheduler(sched),
		history.WithQuietWindow(800*time.Millisecond),
		history.WithClock(sched.Now),
	)
	t.Cleanup(doc.Close)
	screen := tcell.NewSimulationScreen("UTF-8")
	return New(screen, doc, opts), doc, sched, screen
}

func press(s *Studio, keys ...tcell.Key) {
	for _, k := range keys {
		s.handleKey(tcell.NewEventKey(k, 0, tcell.ModNone))
	}
}

func typeText(s *Studio, text string) {
	for _, r := range text {
		if r == '\n' {
			press(s, tcell.KeyEnter)
			continue
		}
		s.handleKey(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
	}
}

func TestTypingGoesThroughHistory(t *testing.T) {
	s, doc, sched, _ := newTestStudio(t, "graph TD", Options{})

	press(s, tcell.KeyEnd)
	typeText(s, "\n  A")

	if got := doc.State().Text; got != "graph TD\n  A" {
		t.Errorf("visible text = %q", got)
	}
	if !doc.Pending() || doc.Len() != 1 {
		t.Fatalf("typing committed early: pending %v len %d", doc.Pending(), doc.Len())
	}

	sched.Advance(time.Second)
	if doc.Len() != 2 || doc.Current() != "graph TD\n  A" {
		t.Fatalf("after quiet window: len %d current %q", doc.Len(), doc.Current())
	}

	press(s, tcell.KeyBackspace2, tcell.KeyBackspace2)
	if s.Text() != "graph TD\n " {
		t.Errorf("after backspace: %q", s.Text())
	}
}

func TestUndoRedoKeys(t *testing.T) {
	s, doc, sched, _ := newTestStudio(t, "graph TD", Options{})

	press(s, tcell.KeyEnd)
	typeText(s, ";")
	sched.Advance(time.Second)

	press(s, tcell.KeyCtrlZ)
	if s.Text() != "graph TD" || s.Status() != "undo" {
		t.Errorf("after undo: %q status %q", s.Text(), s.Status())
	}
	press(s, tcell.KeyCtrlZ)
	if s.Status() != "nothing to undo" {
		t.Errorf("undo at start: status %q", s.Status())
	}
	press(s, tcell.KeyCtrlY)
	if s.Text() != "graph TD;" || !doc.CanUndo() {
		t.Errorf("after redo: %q", s.Text())
	}
	press(s, tcell.KeyCtrlY)
	if s.Status() != "nothing to redo" {
		t.Errorf("redo at end: status %q", s.Status())
	}
}

func TestUndoRevertsPendingTyping(t *testing.T) {
	s, doc, sched, _ := newTestStudio(t, "graph TD", Options{})

	press(s, tcell.KeyEnd)
	typeText(s, ";")
	press(s, tcell.KeyCtrlZ)

	if s.Text() != "graph TD" || s.Status() != "undo" {
		t.Errorf("after undo: %q status %q", s.Text(), s.Status())
	}
	sched.Advance(time.Second)
	if doc.Current() != "graph TD" || !doc.CanRedo() {
		t.Errorf("typing committed after undo: %+v", doc.State())
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.mmd")
	s, doc, _, _ := newTestStudio(t, "graph TD", Options{Path: path})

	typeText(s, "%% ")
	press(s, tcell.KeyCtrlS)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(data) != "%% graph TD" {
		t.Errorf("saved %q", data)
	}
	if doc.Pending() || doc.Len() != 2 {
		t.Errorf("save did not commit typing: pending %v len %d", doc.Pending(), doc.Len())
	}
	if s.Status() != "saved "+path {
		t.Errorf("status = %q", s.Status())
	}
}

func TestSaveWithoutPath(t *testing.T) {
	s, _, _, _ := newTestStudio(t, "", Options{})
	press(s, tcell.KeyCtrlS)
	if s.Status() != "no file to save to" {
		t.Errorf("status = %q", s.Status())
	}
}

func TestShareLink(t *testing.T) {
	codec := share.NewCodec()
	s, doc, _, _ := newTestStudio(t, "graph TD", Options{
		Codec:   codec,
		BaseURL: "https://sketch.example/edit",
	})

	typeText(s, "flowchart LR; ")
	press(s, tcell.KeyCtrlL)

	link := s.Link()
	if !strings.HasPrefix(link, "https://sketch.example/edit#") {
		t.Fatalf("link = %q", link)
	}
	if s.Status() != link {
		t.Errorf("status = %q", s.Status())
	}
	text, err := codec.ParseLink(link)
	if err != nil {
		t.Fatalf("ParseLink failed: %v", err)
	}
	if text != "flowchart LR; graph TD" || doc.Pending() {
		t.Errorf("link text %q, pending %v", text, doc.Pending())
	}
}

func rowText(screen tcell.SimulationScreen, y int) string {
	cells, width, _ := screen.GetContents()
	var sb strings.Builder
	for x := 0; x < width; x++ {
		c := cells[y*width+x]
		if len(c.Runes) == 0 {
			sb.WriteByte(' ')
			continue
		}
		sb.WriteRune(c.Runes[0])
	}
	return strings.TrimRight(sb.String(), " ")
}

func TestDraw(t *testing.T) {
	s, _, _, screen := newTestStudio(t, "graph TD\n  A-->B", Options{Path: "flow.mmd"})
	if err := screen.Init(); err != nil {
		t.Fatal(err)
	}
	defer screen.Fini()
	screen.SetSize(40, 5)

	typeText(s, "x")
	s.draw()

	if got := rowText(screen, 0); got != "xgraph TD" {
		t.Errorf("row 0 = %q", got)
	}
	if got := rowText(screen, 1); got != "  A-->B" {
		t.Errorf("row 1 = %q", got)
	}
	if got := rowText(screen, 4); got != " flow.mmd  1/1 +" {
		t.Errorf("status row = %q", got)
	}
}

func TestRunQuits(t *testing.T) {
	s, doc, _, screen := newTestStudio(t, "graph TD", Options{})

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()
	<-s.started

	screen.InjectKey(tcell.KeyRune, 'x', tcell.ModNone)
	screen.InjectKey(tcell.KeyCtrlQ, 0, tcell.ModCtrl)

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Ctrl-Q")
	}
	if s.Text() != "xgraph TD" || doc.State().Text != "xgraph TD" {
		t.Errorf("text = %q, history %q", s.Text(), doc.State().Text)
	}
}

func TestRunFollowsExternalRewrite(t *testing.T) {
	s, doc, _, screen := newTestStudio(t, "graph TD", Options{})

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()
	<-s.started

	doc.ExternalRewrite("sequenceDiagram")
	screen.InjectKey(tcell.KeyCtrlQ, 0, tcell.ModCtrl)

	select {
	case <-errc:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	if s.Text() != "sequenceDiagram" {
		t.Errorf("text = %q", s.Text())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _, _ := newTestStudio(t, "", Options{})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	<-s.started
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
