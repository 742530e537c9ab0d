package console

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pianomirror/engine"
	"pianomirror/midi"
)

func newTestPrinter(t *testing.T) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	return New(&out, &errOut), &out, &errOut
}

func TestError(t *testing.T) {
	p, _, errOut := newTestPrinter(t)

	err := p.Error("could not open input 3", "run with --list to see ports")
	require.Error(t, err)
	assert.Equal(t, "could not open input 3", err.Error())
	assert.Contains(t, errOut.String(), "could not open input 3\nrun with --list to see ports\n")
}

func TestDevices(t *testing.T) {
	p, out, errOut := newTestPrinter(t)

	p.Devices([]midi.DeviceInfo{
		{ID: 0, Name: "Digital Piano", Direction: midi.DirInput, IsDefault: true},
		{ID: 1, Name: "Synth", Direction: midi.DirOutput},
	})
	assert.Contains(t, out.String(), "*   0")
	assert.Contains(t, out.String(), "Digital Piano")
	assert.Contains(t, out.String(), "Synth")

	p.Devices(nil)
	assert.Contains(t, errOut.String(), "no MIDI ports found")
}

func TestStatus(t *testing.T) {
	p, out, _ := newTestPrinter(t)

	prm := engine.DefaultParams()
	prm.Mode = engine.ModeMirror
	prm.Threshold = 60
	p.Status(engine.Snapshot{Params: prm, BPM: 120, BeatsPerMeasure: 4, Metronome: true}, "")

	s := out.String()
	assert.Contains(t, s, "mode: keyboard mirror")
	assert.Contains(t, s, "split point: 62")
	assert.Contains(t, s, "velocity < 60")
	assert.Contains(t, s, "metronome: on  120 bpm  4 beats")
	assert.Contains(t, s, "script: none")
}

func TestNotice(t *testing.T) {
	p, out, errOut := newTestPrinter(t)

	p.Notice(engine.Notice{Kind: engine.NoticeModeChange, Mode: engine.ModeLeftAscending})
	assert.Contains(t, out.String(), "Left hand ascending mode active")

	p.Notice(engine.Notice{Kind: engine.NoticeScriptError, Err: errors.New("boom")})
	assert.Contains(t, errOut.String(), "script: boom")

	in := midi.Event{Status: midi.NoteOn, Note: 50, Velocity: 64}
	p.Notice(engine.Notice{Kind: engine.NoticeEcho, In: in, Out: in.WithChannel(1)})
	assert.Contains(t, out.String(), "in  ")
	assert.Contains(t, out.String(), "out ")
}

func TestFollow(t *testing.T) {
	p, out, _ := newTestPrinter(t)

	notices := make(chan engine.Notice, 1)
	notices <- engine.Notice{Kind: engine.NoticeModeChange, Mode: engine.ModeNone}
	close(notices)

	done := make(chan struct{})
	go func() {
		p.Follow(context.Background(), notices)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after close")
	}
	assert.Contains(t, out.String(), "No transposition mode active")
}
