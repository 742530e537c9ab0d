package midi

// GM percussion notes used for the metronome
const (
	ClickChannel   uint8 = 9  // channel 10
	ClickAccent    uint8 = 76 // hi wood block
	ClickPlain     uint8 = 77 // low wood block
	accentVelocity uint8 = 127
	plainVelocity  uint8 = 90
)

// ClickSink turns metronome ticks into percussion hits on an output
type ClickSink struct {
	out Output
}

// NewClickSink writes clicks to out
func NewClickSink(out Output) *ClickSink {
	return &ClickSink{out: out}
}

// Tick plays one click. Write errors are ignored.
func (c *ClickSink) Tick(accent bool) {
	note, vel := ClickPlain, plainVelocity
	if accent {
		note, vel = ClickAccent, accentVelocity
	}
	c.out.Write(Event{Status: NoteOn | ClickChannel, Note: note, Velocity: vel})
	c.out.Write(Event{Status: NoteOff | ClickChannel, Note: note})
}
