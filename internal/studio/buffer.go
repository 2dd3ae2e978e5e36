package studio

import "unicode/utf8"

// buffer is the editable text with a rune cursor.
type buffer struct {
	text []rune
	pos  int
}

func newBuffer(s string) *buffer {
	b := &buffer{}
	b.set(s)
	return b
}

func (b *buffer) String() string {
	return string(b.text)
}

// set replaces the text and clamps the cursor.
func (b *buffer) set(s string) {
	b.text = []rune(s)
	b.pos = min(b.pos, len(b.text))
}

func (b *buffer) insert(r rune) {
	if r == utf8.RuneError {
		return
	}
	b.text = append(b.text, 0)
	copy(b.text[b.pos+1:], b.text[b.pos:])
	b.text[b.pos] = r
	b.pos++
}

func (b *buffer) backspace() bool {
	if b.pos == 0 {
		return false
	}
	b.text = append(b.text[:b.pos-1], b.text[b.pos:]...)
	b.pos--
	return true
}

func (b *buffer) deleteForward() bool {
	if b.pos >= len(b.text) {
		return false
	}
	b.text = append(b.text[:b.pos], b.text[b.pos+1:]...)
	return true
}

func (b *buffer) left() {
	if b.pos > 0 {
		b.pos--
	}
}

func (b *buffer) right() {
	if b.pos < len(b.text) {
		b.pos++
	}
}

// lineStart returns the offset of the first rune of the line holding pos.
func (b *buffer) lineStart(pos int) int {
	for pos > 0 && b.text[pos-1] != '\n' {
		pos--
	}
	return pos
}

// lineEnd returns the offset of the newline ending the line holding pos,
// or len(text).
func (b *buffer) lineEnd(pos int) int {
	for pos < len(b.text) && b.text[pos] != '\n' {
		pos++
	}
	return pos
}

func (b *buffer) home() { b.pos = b.lineStart(b.pos) }
func (b *buffer) end()  { b.pos = b.lineEnd(b.pos) }

func (b *buffer) up() {
	start := b.lineStart(b.pos)
	if start == 0 {
		b.pos = 0
		return
	}
	col := b.pos - start
	prevStart := b.lineStart(start - 1)
	b.pos = min(prevStart+col, start-1)
}

func (b *buffer) down() {
	end := b.lineEnd(b.pos)
	if end == len(b.text) {
		b.pos = end
		return
	}
	col := b.pos - b.lineStart(b.pos)
	nextStart := end + 1
	b.pos = min(nextStart+col, b.lineEnd(nextStart))
}

// cursor returns the line and rune column of pos.
func (b *buffer) cursor() (line, col int) {
	for i := 0; i < b.pos; i++ {
		if b.text[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return line, col
}
