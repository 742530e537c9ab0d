package engine

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Metronome limits and defaults
const (
	DefaultBPM = 100
	MinBPM     = 20
	MaxBPM     = 300
)

// TickSink makes a tick audible
type TickSink interface {
	Tick(accent bool)
}

// TimeSignatures maps the interactive time signature codes to beats per
// measure: 0 free running, then 2/4, 3/4, 4/4, 5/4, 6/8.
var TimeSignatures = [...]int{0, 2, 3, 4, 5, 6}

// TimeSignatureName returns a display name for a time signature code
func TimeSignatureName(code int) string {
	switch code {
	case 0:
		return "free"
	case 5:
		return "6/8"
	}
	if code > 0 && code < len(TimeSignatures) {
		return fmt.Sprintf("%d/4", TimeSignatures[code])
	}
	return "?"
}

// Metronome counts beats and measures. The timer goroutine only raises a
// flag; the loop consumes it with Do, so the counters have a single owner.
type Metronome struct {
	bpm             int
	beatsPerMeasure int // 0 = free running
	beat            int
	measure         int
	enabled         bool

	flag atomic.Bool
	stop chan struct{}
	sink TickSink
}

// NewMetronome returns a disabled metronome at DefaultBPM. sink may be nil.
func NewMetronome(sink TickSink) *Metronome {
	return &Metronome{
		bpm:  DefaultBPM,
		sink: sink,
	}
}

// Interval is the time between beats at the current tempo
func (m *Metronome) Interval() time.Duration {
	return time.Minute / time.Duration(m.bpm)
}

// Enable arms the timer and starts ticking
func (m *Metronome) Enable() {
	if m.enabled {
		return
	}
	m.arm()
	m.enabled = true
}

// Disable stops the timer. Beat and measure are kept.
func (m *Metronome) Disable() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.flag.Store(false)
	m.enabled = false
}

func (m *Metronome) arm() {
	stop := make(chan struct{})
	m.stop = stop
	ticker := time.NewTicker(m.Interval())

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.fire()
			}
		}
	}()
}

// fire is the timer callback
func (m *Metronome) fire() {
	m.flag.Store(true)
}

// Do consumes a pending tick, if any. Returns true when a tick was emitted.
func (m *Metronome) Do() bool {
	if !m.enabled || !m.flag.Load() {
		return false
	}

	accent := m.beat == 0 || m.beatsPerMeasure == 0
	if m.sink != nil {
		m.sink.Tick(accent)
	}

	if m.beatsPerMeasure == 0 {
		m.beat++
	} else if m.beat == m.beatsPerMeasure-1 {
		m.beat = 0
		m.measure++
	} else {
		m.beat++
	}

	m.flag.Store(false)
	return true
}

// SetBPM changes tempo, re-arming the timer if running. Out of range
// values are clamped.
func (m *Metronome) SetBPM(bpm int) int {
	if bpm < MinBPM {
		bpm = MinBPM
	}
	if bpm > MaxBPM {
		bpm = MaxBPM
	}
	wasEnabled := m.enabled
	m.Disable()
	m.bpm = bpm
	if wasEnabled {
		m.Enable()
	}
	return bpm
}

// SetBeatsPerMeasure changes the measure length and restarts counting
func (m *Metronome) SetBeatsPerMeasure(n int) {
	if n < 0 {
		n = 0
	}
	m.beat = 0
	m.measure = 0
	m.beatsPerMeasure = n
}

// SetTimeSignature applies a time signature code (see TimeSignatures)
func (m *Metronome) SetTimeSignature(code int) error {
	if code < 0 || code >= len(TimeSignatures) {
		return fmt.Errorf("time signature %d: %w", code, ErrInvalidParam)
	}
	m.SetBeatsPerMeasure(TimeSignatures[code])
	return nil
}

func (m *Metronome) BPM() int             { return m.bpm }
func (m *Metronome) BeatsPerMeasure() int { return m.beatsPerMeasure }
func (m *Metronome) Beat() int            { return m.beat }
func (m *Metronome) Measure() int         { return m.measure }
func (m *Metronome) Enabled() bool        { return m.enabled }
