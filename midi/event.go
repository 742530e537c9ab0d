package midi

import (
	"fmt"
	"time"
)

// MIDI message types (status high nibble)
const (
	NoteOff       uint8 = 0x80
	NoteOn        uint8 = 0x90
	PolyPressure  uint8 = 0xA0
	CC            uint8 = 0xB0
	ProgramChange uint8 = 0xC0
	ChanPressure  uint8 = 0xD0
	PitchBend     uint8 = 0xE0
)

// Event is a single three-byte channel message read from or written to a port
type Event struct {
	Status    uint8
	Note      uint8
	Velocity  uint8
	Timestamp time.Duration // since the input was opened
}

// Type returns the message type with the channel bits stripped
func (e Event) Type() uint8 {
	return e.Status & 0xF0
}

// Channel returns the zero-based channel
func (e Event) Channel() uint8 {
	return e.Status & 0x0F
}

// IsNote reports whether the event is a note-on or note-off
func (e Event) IsNote() bool {
	t := e.Type()
	return t == NoteOn || t == NoteOff
}

// WithChannel returns a copy of e moved onto channel ch (0-15)
func (e Event) WithChannel(ch uint8) Event {
	e.Status = e.Type() | (ch & 0x0F)
	return e
}

// Bytes returns the raw wire form
func (e Event) Bytes() []byte {
	return []byte{e.Status, e.Note, e.Velocity}
}

func (e Event) String() string {
	return fmt.Sprintf("status=%d note=%d vel=%d", e.Status, e.Note, e.Velocity)
}

// FromBytes builds an Event from a raw three-byte channel message.
// ok is false for anything that isn't a three-byte channel voice message.
func FromBytes(b []byte) (Event, bool) {
	if len(b) != 3 || b[0] < 0x80 || b[0] >= 0xF0 {
		return Event{}, false
	}
	t := b[0] & 0xF0
	if t == ProgramChange || t == ChanPressure {
		return Event{}, false
	}
	return Event{Status: b[0], Note: b[1] & 0x7F, Velocity: b[2] & 0x7F}, true
}
