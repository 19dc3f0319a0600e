package watcher

import "time"

// Kind classifies a filesystem change.
type Kind string

const (
	KindCreated    Kind = "created"
	KindModified   Kind = "modified"
	KindDeleted    Kind = "deleted"
	KindDirChanged Kind = "dir-changed"
)

// Event is a single filesystem change under a watched root.
type Event struct {
	Kind Kind
	Path string
	At   time.Time
}

// Qualifying reports whether the event arms a quiet window. Only file
// modifications qualify.
func (e Event) Qualifying() bool { return e.Kind == KindModified }

// EventHandler consumes filesystem events.
type EventHandler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(e Event) { f(e) }
