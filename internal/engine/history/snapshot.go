package history

import (
	"fmt"
	"time"
)

// Source identifies what produced a snapshot.
type Source int

const (
	// SourceSeed is the initial text of a history.
	SourceSeed Source = iota
	// SourceTyping is a coalesced burst of keystrokes.
	SourceTyping
	// SourceExternal is a full-buffer replacement from outside the editor,
	// such as a generated rewrite or a file reload.
	SourceExternal
)

// String returns the string representation of the source.
func (s Source) String() string {
	switch s {
	case SourceSeed:
		return "seed"
	case SourceTyping:
		return "typing"
	case SourceExternal:
		return "external"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(text []byte) error {
	switch string(text) {
	case "seed":
		*s = SourceSeed
	case "typing":
		*s = SourceTyping
	case "external":
		*s = SourceExternal
	default:
		return fmt.Errorf("unknown snapshot source %q", text)
	}
	return nil
}

// Snapshot is one recorded text value.
type Snapshot struct {
	Text      string    `json:"text"`
	Source    Source    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the derived view a UI binds to.
type State struct {
	// Text is the visible buffer text. It runs ahead of the snapshot at
	// Cursor while a typing commit is pending.
	Text    string `json:"text"`
	Cursor  int    `json:"cursor"`
	Len     int    `json:"len"`
	CanUndo bool   `json:"canUndo"`
	CanRedo bool   `json:"canRedo"`
	Pending bool   `json:"pending"`
}
