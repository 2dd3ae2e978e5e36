// Package studio is a minimal terminal editor for one diagram source.
//
// Every edit goes through the history as typing; Ctrl-Z and Ctrl-Y walk
// the snapshots. Ctrl-S saves, Ctrl-L puts a share link in the status
// line and Ctrl-Q quits.
package studio

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/sketchlink/internal/engine/history"
	"github.com/dshills/sketchlink/internal/logging"
	"github.com/dshills/sketchlink/internal/share"
)

// Options configures a Studio.
type Options struct {
	// Path is where Ctrl-S writes. Empty disables saving.
	Path    string
	Codec   *share.Codec
	BaseURL string
	Logger  *logging.Logger
}

// Studio edits one history on a tcell screen.
type Studio struct {
	screen tcell.Screen
	doc    *history.History
	opts   Options
	logger *logging.Logger

	buf    *buffer
	top    int
	status string
	link   string
	quit   bool

	started chan struct{}
}

// New creates a studio. The screen is initialized by Run.
func New(screen tcell.Screen, doc *history.History, opts Options) *Studio {
	if opts.Codec == nil {
		opts.Codec = share.NewCodec()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080/"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Null()
	}

	return &Studio{
		screen: screen,
		doc:    doc,
		opts:   opts,
		logger: logger.WithComponent("studio"),
		buf:    newBuffer(doc.Current()),

		started: make(chan struct{}),
	}
}

// stateEvent wakes the event loop after a history change.
type stateEvent struct {
	tcell.EventTime
}

// Run takes over the screen until Ctrl-Q or ctx ends.
func (s *Studio) Run(ctx context.Context) error {
	if err := s.screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer s.screen.Fini()

	unsubscribe := s.doc.Subscribe(func(history.State) {
		ev := &stateEvent{}
		ev.SetEventNow()
		_ = s.screen.PostEvent(ev)
	})
	defer unsubscribe()
	close(s.started)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.screen.PostEvent(tcell.NewEventInterrupt(nil))
		case <-done:
		}
	}()

	s.draw()
	for !s.quit {
		switch ev := s.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventKey:
			s.handleKey(ev)
		case *stateEvent:
			s.sync()
		case *tcell.EventInterrupt:
			if ctx.Err() != nil {
				return nil
			}
		case *tcell.EventResize:
			s.screen.Sync()
		}
		s.draw()
	}
	return nil
}

// Text returns the editor's buffer text.
func (s *Studio) Text() string {
	return s.buf.String()
}

// Status returns the status message.
func (s *Studio) Status() string {
	return s.status
}

// Link returns the last share link computed with Ctrl-L.
func (s *Studio) Link() string {
	return s.link
}

// sync adopts a text the editor did not type itself, such as a file reload.
// The event may be stale, so the history's latest state wins.
func (s *Studio) sync() {
	if text := s.doc.State().Text; text != s.buf.String() {
		s.buf.set(text)
	}
}

func (s *Studio) edited() {
	s.doc.TextChanged(s.buf.String())
	s.status = ""
}

// keyOf folds Ctrl+letter runes into the matching control key.
func keyOf(ev *tcell.EventKey) tcell.Key {
	k := ev.Key()
	if k == tcell.KeyRune && ev.Modifiers()&tcell.ModCtrl != 0 {
		if r := ev.Rune() | 0x20; r >= 'a' && r <= 'z' {
			return tcell.KeyCtrlA + tcell.Key(r-'a')
		}
	}
	return k
}

func (s *Studio) handleKey(ev *tcell.EventKey) {
	switch keyOf(ev) {
	case tcell.KeyCtrlQ:
		s.quit = true
	case tcell.KeyCtrlZ:
		// Commit the burst being typed so undo reverts it.
		s.doc.Flush()
		if s.doc.Undo() {
			s.buf.set(s.doc.Current())
			s.status = "undo"
		} else {
			s.status = "nothing to undo"
		}
	case tcell.KeyCtrlY:
		if s.doc.Redo() {
			s.buf.set(s.doc.Current())
			s.status = "redo"
		} else {
			s.status = "nothing to redo"
		}
	case tcell.KeyCtrlS:
		s.save()
	case tcell.KeyCtrlL:
		s.share()
	case tcell.KeyEnter:
		s.buf.insert('\n')
		s.edited()
	case tcell.KeyTab:
		s.buf.insert('\t')
		s.edited()
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if s.buf.backspace() {
			s.edited()
		}
	case tcell.KeyDelete:
		if s.buf.deleteForward() {
			s.edited()
		}
	case tcell.KeyLeft:
		s.buf.left()
	case tcell.KeyRight:
		s.buf.right()
	case tcell.KeyUp:
		s.buf.up()
	case tcell.KeyDown:
		s.buf.down()
	case tcell.KeyHome:
		s.buf.home()
	case tcell.KeyEnd:
		s.buf.end()
	case tcell.KeyRune:
		s.buf.insert(ev.Rune())
		s.edited()
	}
}

// save commits pending typing and writes the file.
func (s *Studio) save() {
	if s.opts.Path == "" {
		s.status = "no file to save to"
		return
	}
	s.doc.Flush()
	if err := os.WriteFile(s.opts.Path, []byte(s.doc.Current()), 0o644); err != nil {
		s.status = "save failed: " + err.Error()
		s.logger.Warn("save %s: %v", s.opts.Path, err)
		return
	}
	s.status = "saved " + s.opts.Path
}

// share commits pending typing and builds a link for the current text.
func (s *Studio) share() {
	s.doc.Flush()
	link, err := s.opts.Codec.Link(s.opts.BaseURL, s.doc.Current())
	if err != nil {
		s.status = "link failed: " + err.Error()
		return
	}
	s.link = link
	s.status = link
}

var (
	styleText   = tcell.StyleDefault
	styleStatus = tcell.StyleDefault.Reverse(true)
)

func (s *Studio) draw() {
	s.screen.Clear()
	width, height := s.screen.Size()
	if height < 2 || width < 1 {
		s.screen.Show()
		return
	}
	rows := height - 1

	line, col := s.buf.cursor()
	if line < s.top {
		s.top = line
	}
	if line >= s.top+rows {
		s.top = line - rows + 1
	}

	lines := strings.Split(s.buf.String(), "\n")
	cursorX := 0
	for y := 0; y < rows && s.top+y < len(lines); y++ {
		x := 0
		for i, r := range []rune(lines[s.top+y]) {
			if s.top+y == line && i == col {
				cursorX = x
			}
			w := uniseg.StringWidth(string(r))
			if r == '\t' {
				r, w = ' ', 4-x%4
				for j := 1; j < w && x+j < width; j++ {
					s.screen.SetContent(x+j, y, ' ', nil, styleText)
				}
			}
			if x < width {
				s.screen.SetContent(x, y, r, nil, styleText)
			}
			x += max(w, 1)
		}
		if s.top+y == line && col >= len([]rune(lines[s.top+y])) {
			cursorX = x
		}
	}
	s.screen.ShowCursor(min(cursorX, width-1), line-s.top)

	s.drawStatus(width, height-1)
	s.screen.Show()
}

func (s *Studio) drawStatus(width, y int) {
	st := s.doc.State()
	name := s.opts.Path
	if name == "" {
		name = "[scratch]"
	}
	flags := ""
	if st.Pending {
		flags = " +"
	}
	text := fmt.Sprintf(" %s  %d/%d%s", name, st.Cursor+1, st.Len, flags)
	if s.status != "" {
		text += "  " + s.status
	}

	x := 0
	for _, r := range text {
		if x >= width {
			break
		}
		s.screen.SetContent(x, y, r, nil, styleStatus)
		x += max(uniseg.StringWidth(string(r)), 1)
	}
	for ; x < width; x++ {
		s.screen.SetContent(x, y, ' ', nil, styleStatus)
	}
}
