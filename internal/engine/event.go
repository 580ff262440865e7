package engine

import (
	"fmt"
)

//go:generate stringer -type=EventKind -trimprefix=Event
type EventKind uint8

const (
	EventInvalid EventKind = iota
	EventConnected
	EventDisconnected
	EventConnectError
	EventMessage
	EventTimer
	EventIntent
)

// Event is everything the loop reacts to. Only fields for Kind are set.
type Event struct { //nolint:maligned
	Kind    EventKind
	Err     error
	Payload []byte

	fire   func()
	call   func() error
	result chan error
}

func (e *Event) String() string {
	inner := ""
	switch e.Kind {
	case EventDisconnected, EventConnectError:
		inner = fmt.Sprintf(" err=%v", e.Err)
	case EventMessage:
		inner = fmt.Sprintf(" len=%d", len(e.Payload))
	}
	return fmt.Sprintf("engine.Event(%s%s)", e.Kind.String(), inner)
}
