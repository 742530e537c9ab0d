package engine

import "fmt"

// Mode is the active transposition mode
type Mode int

const (
	ModeNone Mode = iota
	ModeLeftAscending
	ModeRightDescending
	ModeMirror

	numModes
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "no transposition"
	case ModeLeftAscending:
		return "left hand ascending"
	case ModeRightDescending:
		return "right hand descending"
	case ModeMirror:
		return "keyboard mirror"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	return m >= ModeNone && m < numModes
}

// Next cycles None -> LeftAscending -> RightDescending -> Mirror -> None
func (m Mode) Next() Mode {
	if !m.Valid() {
		return ModeNone
	}
	return (m + 1) % numModes
}
