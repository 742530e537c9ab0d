package midi

import (
	"fmt"
	"sync/atomic"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// InputQueueSize is how many events are buffered between the driver callback and Read
const InputQueueSize = 1024

// PortInput buffers messages from a hardware input port until they're polled
type PortInput struct {
	name     string
	inPort   drivers.In
	stopFunc func()

	events   chan Event
	overflow atomic.Bool
	dropped  atomic.Uint64
}

// NewPortInput starts listening on inPort. Active sensing, clock and sysex
// are filtered out; only three-byte channel messages are kept.
func NewPortInput(inPort drivers.In) (*PortInput, error) {
	in := &PortInput{
		name:   inPort.String(),
		inPort: inPort,
		events: make(chan Event, InputQueueSize),
	}

	stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
		ev, ok := FromBytes([]byte(msg))
		if !ok {
			return
		}
		ev.Timestamp = time.Duration(timestampms) * time.Millisecond
		in.push(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	in.stopFunc = stop

	return in, nil
}

// push is called from the driver goroutine
func (in *PortInput) push(ev Event) {
	select {
	case in.events <- ev:
	default:
		in.overflow.Store(true)
		in.dropped.Add(1)
	}
}

// Name returns the port name
func (in *PortInput) Name() string {
	return in.name
}

// Dropped returns how many events were lost to overflow
func (in *PortInput) Dropped() uint64 {
	return in.dropped.Load()
}

func (in *PortInput) Pending() int {
	n := len(in.events)
	if in.overflow.Load() {
		n++
	}
	return n
}

func (in *PortInput) Read() (Event, error) {
	if in.overflow.CompareAndSwap(true, false) {
		return Event{}, ErrBufferOverflow
	}
	select {
	case ev := <-in.events:
		return ev, nil
	default:
		return Event{}, ErrNoEvent
	}
}

func (in *PortInput) Close() error {
	if in.stopFunc != nil {
		in.stopFunc()
	}
	if in.inPort == nil {
		return nil
	}
	return in.inPort.Close()
}
