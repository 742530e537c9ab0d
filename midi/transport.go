package midi

import "errors"

var (
	// ErrBufferOverflow means input arrived faster than it was read and at
	// least one event was lost. The caller should drop and keep polling.
	ErrBufferOverflow = errors.New("midi: input buffer overflow")
	// ErrNoEvent is returned by Read when nothing is buffered
	ErrNoEvent = errors.New("midi: no event pending")
	// ErrNoDevice is returned when the requested port doesn't exist
	ErrNoDevice = errors.New("midi: no such device")
)

// DefaultDevice selects the system default port
const DefaultDevice = -1

// Input is a polled source of channel messages
type Input interface {
	// Pending reports how many reads will succeed or fail without blocking
	Pending() int
	// Read pops the oldest buffered event. Never blocks.
	Read() (Event, error)
	Close() error
}

// Output is a sink for channel messages
type Output interface {
	Write(ev Event) error
	Close() error
}
