package engine

import "pianomirror/midi"

// Script is a loaded user transform. Implemented by script.Host.
type Script interface {
	Loaded() bool
	Invoke(status, note, velocity uint8) (uint8, uint8, uint8, error)
}

// Transformer maps one input event to one output event. On error the
// returned event is the input, unchanged.
type Transformer interface {
	Transform(ev midi.Event) (midi.Event, error)
}

// BuiltIn applies one of the fixed pitch mappings
type BuiltIn struct {
	Mode  Mode
	Split uint8
}

func (b BuiltIn) Transform(ev midi.Event) (midi.Event, error) {
	if ev.IsNote() {
		ev.Note = TransformNote(ev.Note, b.Mode, b.Split)
	}
	return ev, nil
}

// Scripted delegates the whole status/note/velocity triple to a script
type Scripted struct {
	Script Script
}

func (s Scripted) Transform(ev midi.Event) (midi.Event, error) {
	status, note, vel, err := s.Script.Invoke(ev.Status, ev.Note, ev.Velocity)
	if err != nil {
		return ev, err
	}
	out := ev
	out.Status, out.Note, out.Velocity = status, note, vel
	return out, nil
}

// Select returns the scripted transformer while a script is loaded,
// otherwise the built-in mode from p.
func Select(p Params, script Script) Transformer {
	if script != nil && script.Loaded() {
		return Scripted{Script: script}
	}
	return BuiltIn{Mode: p.Mode, Split: p.Split}
}

// TransformNote reflects note around split according to mode. A reflection
// that would land outside 0-127 leaves the note where it is.
func TransformNote(note uint8, mode Mode, split uint8) uint8 {
	n, s := int(note), int(split)
	r := n

	switch mode {
	case ModeLeftAscending:
		if n < s {
			r = s + (s - n)
		}
	case ModeRightDescending:
		if n > s {
			r = s - (n - s)
		}
	case ModeMirror:
		r = s - (n - s)
	}

	if r < 0 || r > 127 {
		return note
	}
	return uint8(r)
}

// ApplyOffset shifts note by offset semitones, clamped to 0-127
func ApplyOffset(note uint8, offset int) uint8 {
	return clamp7(int(note) + offset)
}

func clamp7(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}
