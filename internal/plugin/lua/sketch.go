package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/sketchlink/internal/engine/history"
	"github.com/dshills/sketchlink/internal/share"
)

// SketchModule exposes a history and the share codec to scripts as the
// global table "sketch".
type SketchModule struct {
	doc     *history.History
	codec   *share.Codec
	baseURL string
}

// NewSketchModule creates the module. codec may be nil for the default codec.
func NewSketchModule(doc *history.History, codec *share.Codec, baseURL string) *SketchModule {
	if codec == nil {
		codec = share.NewCodec()
	}
	return &SketchModule{doc: doc, codec: codec, baseURL: baseURL}
}

// Name returns the global the module is installed as.
func (m *SketchModule) Name() string {
	return "sketch"
}

// Register installs the module into s.
func (m *SketchModule) Register(s *State) {
	s.RegisterModule(m.Name(), map[string]lua.LGFunction{
		"encode":   m.encode,
		"decode":   m.decode,
		"link":     m.link,
		"text":     m.text,
		"type":     m.typeText,
		"rewrite":  m.rewrite,
		"undo":     m.undo,
		"redo":     m.redo,
		"can_undo": m.canUndo,
		"can_redo": m.canRedo,
		"flush":    m.flush,
		"len":      m.snapshotCount,
		"cursor":   m.cursor,
	})
}

// encode(text) -> token
func (m *SketchModule) encode(L *lua.LState) int {
	L.Push(lua.LString(m.codec.Encode(L.CheckString(1))))
	return 1
}

// decode(token_or_link) -> text | nil, err
// Accepts a bare token, a "#token" fragment or a full link.
func (m *SketchModule) decode(L *lua.LState) int {
	in := L.CheckString(1)

	var (
		text string
		err  error
	)
	if strings.Contains(in, "://") {
		text, err = m.codec.ParseLink(in)
	} else {
		text, err = m.codec.Decode(in)
	}
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LString(text))
	return 1
}

// link([text]) -> url
// Defaults to the current text.
func (m *SketchModule) link(L *lua.LState) int {
	text := L.OptString(1, m.doc.Current())
	u, err := m.codec.Link(m.baseURL, text)
	if err != nil {
		L.RaiseError("link: %v", err)
		return 0
	}
	L.Push(lua.LString(u))
	return 1
}

// text() -> string
func (m *SketchModule) text(L *lua.LState) int {
	L.Push(lua.LString(m.doc.Current()))
	return 1
}

// type(text)
// Records a keystroke-level change, committed after the quiet window.
func (m *SketchModule) typeText(L *lua.LState) int {
	m.doc.TextChanged(L.CheckString(1))
	return 0
}

// rewrite(text)
// Replaces the buffer as one undoable step.
func (m *SketchModule) rewrite(L *lua.LState) int {
	m.doc.ExternalRewrite(L.CheckString(1))
	return 0
}

func (m *SketchModule) undo(L *lua.LState) int {
	L.Push(lua.LBool(m.doc.Undo()))
	return 1
}

func (m *SketchModule) redo(L *lua.LState) int {
	L.Push(lua.LBool(m.doc.Redo()))
	return 1
}

func (m *SketchModule) canUndo(L *lua.LState) int {
	L.Push(lua.LBool(m.doc.CanUndo()))
	return 1
}

func (m *SketchModule) canRedo(L *lua.LState) int {
	L.Push(lua.LBool(m.doc.CanRedo()))
	return 1
}

func (m *SketchModule) flush(L *lua.LState) int {
	L.Push(lua.LBool(m.doc.Flush()))
	return 1
}

// len() -> number of snapshots
func (m *SketchModule) snapshotCount(L *lua.LState) int {
	L.Push(lua.LNumber(m.doc.Len()))
	return 1
}

// cursor() -> 1-based snapshot index
func (m *SketchModule) cursor(L *lua.LState) int {
	L.Push(lua.LNumber(m.doc.Cursor() + 1))
	return 1
}
