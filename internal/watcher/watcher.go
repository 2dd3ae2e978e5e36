// Package watcher reloads a diagram source file when it changes on disk.
//
// The file's directory is watched rather than the file itself so that
// editors which save by writing a temporary file and renaming it over the
// original keep being noticed. Bursts of events are debounced and the file
// contents are applied to a history as one external rewrite.
package watcher

import (
	"errors"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrPathNotExist  = errors.New("path does not exist")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file was removed.
	OpRemove
	// OpRename indicates a file was renamed.
	OpRename
	// OpChmod indicates file permissions were changed.
	OpChmod
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	case OpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a file system change.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Source delivers raw file system events for watched directories.
type Source interface {
	// Add starts watching a directory.
	Add(dir string) error

	// Events returns the event channel. It is closed by Close.
	Events() <-chan Event

	// Errors returns the error channel. It is closed by Close.
	Errors() <-chan error

	// Close stops the source.
	Close() error
}

// Rewriter receives reloaded file contents. *history.History implements it.
type Rewriter interface {
	// Current returns the committed text; a reload equal to it is skipped.
	Current() string
	ExternalRewrite(text string)
}
