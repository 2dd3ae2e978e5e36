package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSNotifySource implements Source using fsnotify.
type FSNotifySource struct {
	watcher *fsnotify.Watcher

	events chan Event
	errors chan error

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewFSNotifySource creates an fsnotify-backed source.
func NewFSNotifySource() (*FSNotifySource, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	s := &FSNotifySource{
		watcher: fsw,
		events:  make(chan Event, 64),
		errors:  make(chan error, 8),
		closeCh: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop()

	return s, nil
}

// Add starts watching dir.
func (s *FSNotifySource) Add(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrWatcherClosed
	}
	return s.watcher.Add(dir)
}

// Events returns the event channel.
func (s *FSNotifySource) Events() <-chan Event {
	return s.events
}

// Errors returns the error channel.
func (s *FSNotifySource) Errors() <-chan error {
	return s.errors
}

// Close stops the source and closes its channels.
func (s *FSNotifySource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeCh)
	s.mu.Unlock()

	err := s.watcher.Close()
	s.wg.Wait()

	close(s.events)
	close(s.errors)
	return err
}

func (s *FSNotifySource) processLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.closeCh:
			return

		case fsEvent, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			op := convertOp(fsEvent.Op)
			if op == 0 {
				continue
			}
			select {
			case s.events <- Event{Path: fsEvent.Name, Op: op, Timestamp: time.Now()}:
			case <-s.closeCh:
				return
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			default:
				// Channel full, drop error
			}
		}
	}
}

// convertOp converts fsnotify.Op to Op.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}

var _ Source = (*FSNotifySource)(nil)
