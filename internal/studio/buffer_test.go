package studio

import "testing"

func TestBufferEditing(t *testing.T) {
	b := newBuffer("ac")
	b.right()
	b.insert('b')
	if b.String() != "abc" || b.pos != 2 {
		t.Fatalf("after insert: %q pos %d", b.String(), b.pos)
	}

	if !b.backspace() || b.String() != "ac" {
		t.Errorf("backspace: %q", b.String())
	}
	if !b.deleteForward() || b.String() != "a" {
		t.Errorf("deleteForward: %q", b.String())
	}
	if b.deleteForward() {
		t.Error("deleteForward at end reported a change")
	}

	b.home()
	if b.backspace() {
		t.Error("backspace at start reported a change")
	}
}

func TestBufferSetClampsCursor(t *testing.T) {
	b := newBuffer("graph TD")
	b.end()
	b.set("A")
	if b.pos != 1 {
		t.Errorf("pos = %d, want 1", b.pos)
	}
}

func TestBufferLines(t *testing.T) {
	b := newBuffer("graph TD\n  A\n  B-->C")

	tests := []struct {
		name string
		move func()
		line int
		col  int
	}{
		{"start", func() {}, 0, 0},
		{"end of first line", b.end, 0, 8},
		{"down clamps to short line", b.down, 1, 3},
		{"down", b.down, 2, 3},
		{"end", b.end, 2, 7},
		{"up clamps", b.up, 1, 3},
		{"home", b.home, 1, 0},
		{"up", b.up, 0, 0},
		{"up on first line", b.up, 0, 0},
		{"left at start", b.left, 0, 0},
	}

	for _, tt := range tests {
		tt.move()
		line, col := b.cursor()
		if line != tt.line || col != tt.col {
			t.Errorf("%s: cursor = %d:%d, want %d:%d", tt.name, line, col, tt.line, tt.col)
		}
	}

	b.set(b.String())
	b.pos = len(b.text) - 1
	b.down()
	if b.pos != len(b.text) {
		t.Errorf("down on last line: pos %d", b.pos)
	}
}

func TestBufferMultibyte(t *testing.T) {
	b := newBuffer("A→B")
	b.end()
	b.left()
	if !b.backspace() || b.String() != "AB" {
		t.Errorf("backspace over arrow: %q", b.String())
	}
}
