package engine

import "pianomirror/midi"

// Defaults
const (
	DefaultSplit       uint8 = 62 // middle D
	DefaultEchoChannel uint8 = 1

	// ControlNote struck with zero velocity cycles the mode
	ControlNote uint8 = 21
)

// Params are the transformation settings. Only the loop goroutine reads or
// writes them; everyone else goes through the command channel.
type Params struct {
	Mode        Mode
	Split       uint8
	Threshold   uint8 // 0 = quiet mode off
	EchoChannel uint8 // 0-15
	Offset      int   // semitones added after transposition
	EchoEnabled bool
	DebugEcho   bool
}

// DefaultParams returns the startup settings
func DefaultParams() Params {
	return Params{
		Mode:        ModeNone,
		Split:       DefaultSplit,
		EchoChannel: DefaultEchoChannel,
		EchoEnabled: true,
	}
}

// ShouldEcho applies the quiet-mode gate. Only note-ons are gated so a
// note that got through always gets its release.
func (p Params) ShouldEcho(ev midi.Event) bool {
	if p.Threshold == 0 {
		return true
	}
	if ev.Type() != midi.NoteOn || ev.Velocity == 0 {
		return true
	}
	return ev.Velocity < p.Threshold
}

// IsControlNote reports whether ev is the out-of-band mode-cycle signal
func IsControlNote(ev midi.Event) bool {
	return ev.IsNote() && ev.Note == ControlNote && ev.Velocity == 0
}
