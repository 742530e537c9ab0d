package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickRecorder struct {
	ticks []bool
}

func (r *tickRecorder) Tick(accent bool) {
	r.ticks = append(r.ticks, accent)
}

// running returns a metronome that counts without a real timer
func running(sink TickSink) *Metronome {
	m := NewMetronome(sink)
	m.enabled = true
	return m
}

func TestMetronomeMeasureCounting(t *testing.T) {
	rec := &tickRecorder{}
	m := running(rec)
	m.SetBeatsPerMeasure(4)

	for i := 0; i < 4; i++ {
		m.fire()
		require.True(t, m.Do())
	}

	assert.Equal(t, 1, m.Measure())
	assert.Equal(t, 0, m.Beat())
	assert.Equal(t, []bool{true, false, false, false}, rec.ticks)

	m.fire()
	m.Do()
	assert.Equal(t, 1, m.Beat())
	assert.Equal(t, 1, m.Measure())
}

func TestMetronomeFreeRunning(t *testing.T) {
	rec := &tickRecorder{}
	m := running(rec)

	for i := 0; i < 50; i++ {
		m.fire()
		m.Do()
	}

	assert.Equal(t, 0, m.Measure())
	assert.Equal(t, 50, m.Beat())
	for _, accent := range rec.ticks {
		assert.True(t, accent)
	}
}

func TestMetronomeConsumesFlagOnce(t *testing.T) {
	m := running(nil)
	assert.False(t, m.Do(), "no tick pending")

	m.fire()
	assert.True(t, m.Do())
	assert.False(t, m.Do())
}

func TestMetronomeDisabledIgnoresTicks(t *testing.T) {
	rec := &tickRecorder{}
	m := NewMetronome(rec)
	m.fire()
	assert.False(t, m.Do())
	assert.Empty(t, rec.ticks)
}

func TestSetBeatsPerMeasureResetsCounters(t *testing.T) {
	m := running(nil)
	m.SetBeatsPerMeasure(3)
	for i := 0; i < 5; i++ {
		m.fire()
		m.Do()
	}
	require.Equal(t, 1, m.Measure())

	m.SetBeatsPerMeasure(4)
	assert.Equal(t, 0, m.Beat())
	assert.Equal(t, 0, m.Measure())
	assert.Equal(t, DefaultBPM, m.BPM())
	assert.True(t, m.Enabled())
}

func TestSetTimeSignature(t *testing.T) {
	m := NewMetronome(nil)
	require.NoError(t, m.SetTimeSignature(5))
	assert.Equal(t, 6, m.BeatsPerMeasure())
	require.NoError(t, m.SetTimeSignature(0))
	assert.Equal(t, 0, m.BeatsPerMeasure())
	assert.ErrorIs(t, m.SetTimeSignature(6), ErrInvalidParam)

	assert.Equal(t, "3/4", TimeSignatureName(2))
	assert.Equal(t, "6/8", TimeSignatureName(5))
	assert.Equal(t, "free", TimeSignatureName(0))
}

func TestSetBPMClampsAndRearms(t *testing.T) {
	m := NewMetronome(nil)
	assert.Equal(t, MaxBPM, m.SetBPM(1000))
	assert.Equal(t, 200*time.Millisecond, m.Interval())
	assert.False(t, m.Enabled(), "stays disabled")

	m.Enable()
	defer m.Disable()
	assert.Equal(t, MinBPM, m.SetBPM(1))
	assert.True(t, m.Enabled())
	assert.Equal(t, 3*time.Second, m.Interval())
}

func TestMetronomeTimerRaisesFlag(t *testing.T) {
	m := NewMetronome(nil)
	m.SetBPM(MaxBPM)
	m.Enable()
	defer m.Disable()

	require.Eventually(t, m.flag.Load, time.Second, 10*time.Millisecond)
	assert.True(t, m.Do())

	m.Disable()
	assert.False(t, m.Enabled())
	assert.False(t, m.flag.Load())
}
