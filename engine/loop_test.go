package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pianomirror/midi"
)

type fakeInput struct {
	queue []error // nil entries mean "return the next event"
	evs   []midi.Event
}

func (f *fakeInput) send(evs ...midi.Event) {
	for _, ev := range evs {
		f.evs = append(f.evs, ev)
		f.queue = append(f.queue, nil)
	}
}

func (f *fakeInput) fail(err error) {
	f.queue = append(f.queue, err)
}

func (f *fakeInput) Pending() int { return len(f.queue) }

func (f *fakeInput) Read() (midi.Event, error) {
	if len(f.queue) == 0 {
		return midi.Event{}, midi.ErrNoEvent
	}
	err := f.queue[0]
	f.queue = f.queue[1:]
	if err != nil {
		return midi.Event{}, err
	}
	ev := f.evs[0]
	f.evs = f.evs[1:]
	return ev, nil
}

func (f *fakeInput) Close() error { return nil }

type fakeOutput struct {
	mu     sync.Mutex
	events []midi.Event
	err    error
}

func (f *fakeOutput) Write(ev midi.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeOutput) Close() error { return nil }

func (f *fakeOutput) take() []midi.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	f.events = nil
	return out
}

type fakeBus struct {
	published []midi.Event
}

func (b *fakeBus) Publish(ev midi.Event) {
	b.published = append(b.published, ev)
}

func newTestLoop(opts Options) (*Loop, *fakeInput, *fakeOutput, *Channel) {
	in := &fakeInput{}
	out := &fakeOutput{}
	ch := NewChannel(16)
	return NewLoop(in, out, ch, opts), in, out, ch
}

// enqueue puts a command on the queue the way Client.Do would
func enqueue(ch *Channel, seq uint64, code Code, p1 int) {
	ch.commands <- Command{Code: code, P1: p1, seq: seq}
}

func TestLoopEchoScenario(t *testing.T) {
	loop, in, out, ch := newTestLoop(Options{})

	in.send(midi.Event{Status: 144, Note: 60, Velocity: 64})
	loop.Step()

	got := out.take()
	require.Len(t, got, 1)
	assert.Equal(t, midi.Event{Status: 144 | DefaultEchoChannel, Note: 60, Velocity: 64}, got[0])

	enqueue(ch, 1, CmdSetMode, int(ModeLeftAscending))
	in.send(midi.Event{Status: 144, Note: 50, Velocity: 64})
	loop.Step()

	got = out.take()
	require.Len(t, got, 1)
	assert.Equal(t, uint8(74), got[0].Note)
}

func TestLoopQuietModeGate(t *testing.T) {
	loop, in, out, ch := newTestLoop(Options{})

	enqueue(ch, 1, CmdSetThreshold, 50)
	in.send(
		midi.Event{Status: 0x90, Note: 60, Velocity: 40},
		midi.Event{Status: 0x90, Note: 61, Velocity: 60},
	)
	loop.Step()

	got := out.take()
	require.Len(t, got, 1)
	assert.Equal(t, uint8(60), got[0].Note)

	enqueue(ch, 2, CmdSetThreshold, 0)
	in.send(
		midi.Event{Status: 0x90, Note: 60, Velocity: 40},
		midi.Event{Status: 0x90, Note: 61, Velocity: 127},
	)
	loop.Step()
	assert.Len(t, out.take(), 2)
}

func TestLoopQuietModeLetsReleasesThrough(t *testing.T) {
	p := DefaultParams()
	p.Threshold = 50
	loop, in, out, _ := newTestLoop(Options{Params: &p})

	in.send(midi.Event{Status: 0x80, Note: 60, Velocity: 90})
	loop.Step()
	assert.Len(t, out.take(), 1)
}

func TestLoopDrainsAllCommandsInOrder(t *testing.T) {
	loop, _, _, ch := newTestLoop(Options{})

	const n = 10
	for i := 1; i <= n; i++ {
		enqueue(ch, uint64(i), CmdSetThreshold, i)
	}
	loop.Step()

	require.Len(t, ch.acks, n)
	for i := 1; i <= n; i++ {
		ack := <-ch.acks
		assert.Equal(t, uint64(i), ack.Seq)
		assert.Equal(t, CmdAck, ack.Code)
		assert.Equal(t, i, ack.Value)
	}
	assert.Equal(t, uint8(n), loop.Snapshot().Params.Threshold)
}

func TestLoopQuitStopsEchoing(t *testing.T) {
	loop, in, out, ch := newTestLoop(Options{})

	enqueue(ch, 1, CmdQuit, 0)
	enqueue(ch, 2, CmdSetThreshold, 10)
	in.send(midi.Event{Status: 0x90, Note: 60, Velocity: 64})
	loop.Step()

	require.Len(t, ch.acks, 1, "commands after quit aren't processed")
	ack := <-ch.acks
	assert.Equal(t, CmdQuit, ack.Command)

	in.send(midi.Event{Status: 0x90, Note: 61, Velocity: 64})
	loop.Step()
	assert.Empty(t, out.take())
	assert.True(t, loop.Snapshot().Stopped)

	select {
	case <-ch.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestLoopControlNoteCyclesMode(t *testing.T) {
	loop, in, out, _ := newTestLoop(Options{})

	in.send(midi.Event{Status: 0x90, Note: ControlNote, Velocity: 0})
	loop.Step()

	assert.Empty(t, out.take(), "control note isn't echoed")
	assert.Equal(t, ModeLeftAscending, loop.Snapshot().Params.Mode)

	n := <-loop.Notices()
	assert.Equal(t, NoticeModeChange, n.Kind)
	assert.Equal(t, ModeLeftAscending, n.Mode)

	for i := 0; i < 3; i++ {
		in.send(midi.Event{Status: 0x80, Note: ControlNote, Velocity: 0})
	}
	loop.Step()
	assert.Equal(t, ModeNone, loop.Snapshot().Params.Mode)

	// struck with velocity is ordinary music
	in.send(midi.Event{Status: 0x90, Note: ControlNote, Velocity: 30})
	loop.Step()
	assert.Len(t, out.take(), 1)
}

func TestLoopOverflowDropsOneEvent(t *testing.T) {
	loop, in, out, _ := newTestLoop(Options{})

	in.fail(midi.ErrBufferOverflow)
	in.send(midi.Event{Status: 0x90, Note: 60, Velocity: 64})
	loop.Step()

	assert.Len(t, out.take(), 1)
	n := <-loop.Notices()
	assert.Equal(t, NoticeDropped, n.Kind)
}

func TestLoopWriteErrorIsNotFatal(t *testing.T) {
	loop, in, out, _ := newTestLoop(Options{})
	out.err = errors.New("device gone")

	in.send(midi.Event{Status: 0x90, Note: 60, Velocity: 64})
	loop.Step()

	n := <-loop.Notices()
	assert.Equal(t, NoticeWriteError, n.Kind)

	out.err = nil
	in.send(midi.Event{Status: 0x90, Note: 62, Velocity: 64})
	loop.Step()
	assert.Len(t, out.take(), 1)
}

func TestLoopChannelOffsetAndEchoToggle(t *testing.T) {
	bus := &fakeBus{}
	loop, in, out, ch := newTestLoop(Options{Bus: bus})

	enqueue(ch, 1, CmdSetEchoChannel, 3)
	enqueue(ch, 2, CmdSetNoteOffset, -12)
	in.send(midi.Event{Status: 0x90, Note: 60, Velocity: 64})
	loop.Step()

	got := out.take()
	require.Len(t, got, 1)
	assert.Equal(t, midi.Event{Status: 0x93, Note: 48, Velocity: 64}, got[0])

	enqueue(ch, 3, CmdSetEcho, Toggle)
	in.send(midi.Event{Status: 0x90, Note: 60, Velocity: 64})
	loop.Step()
	assert.Empty(t, out.take())

	require.Len(t, bus.published, 2, "bus still sees events with echo off")
	assert.Equal(t, got[0], bus.published[0])
}

func TestLoopScriptErrorPassesThrough(t *testing.T) {
	script := &fakeScript{loaded: true, err: errors.New("attempt to call a nil value")}
	loop, in, out, _ := newTestLoop(Options{Script: script})

	in.send(midi.Event{Status: 0x90, Note: 60, Velocity: 64})
	loop.Step()

	got := out.take()
	require.Len(t, got, 1)
	assert.Equal(t, uint8(60), got[0].Note)
	n := <-loop.Notices()
	assert.Equal(t, NoticeScriptError, n.Kind)

	script.err = nil
	in.send(midi.Event{Status: 0x90, Note: 60, Velocity: 64})
	loop.Step()
	got = out.take()
	require.Len(t, got, 1)
	assert.Equal(t, uint8(61), got[0].Note)
	assert.Equal(t, 2, script.calls)
}

func TestLoopDebugEchoNotices(t *testing.T) {
	loop, in, _, ch := newTestLoop(Options{})

	enqueue(ch, 1, CmdSetDebugEcho, 1)
	in.send(midi.Event{Status: 0x90, Note: 60, Velocity: 64})
	loop.Step()

	n := <-loop.Notices()
	assert.Equal(t, NoticeEcho, n.Kind)
	assert.Equal(t, uint8(60), n.In.Note)
}

func TestLoopInjectedEvents(t *testing.T) {
	loop, _, out, _ := newTestLoop(Options{})

	remote := midi.Event{Status: 0x92, Note: 70, Velocity: 80}
	require.True(t, loop.Inject(remote))
	loop.Step()

	assert.Equal(t, []midi.Event{remote}, out.take())
}

func TestLoopInvalidParamIsAcked(t *testing.T) {
	loop, _, _, ch := newTestLoop(Options{})

	enqueue(ch, 1, CmdSetMode, 9)
	enqueue(ch, 2, Code(77), 0)
	loop.Step()

	ack := <-ch.acks
	assert.ErrorIs(t, ack.Err, ErrInvalidParam)
	ack = <-ch.acks
	assert.ErrorIs(t, ack.Err, ErrUnknownCommand)
	assert.Equal(t, ModeNone, loop.Snapshot().Params.Mode)
}

func TestLoopMetronomeCommands(t *testing.T) {
	rec := &tickRecorder{}
	metro := NewMetronome(rec)
	loop, _, _, ch := newTestLoop(Options{Metronome: metro})

	enqueue(ch, 1, CmdSetBPM, 240)
	enqueue(ch, 2, CmdSetTimeSignature, 3)
	enqueue(ch, 3, CmdSetMetronome, 1)
	loop.Step()
	defer metro.Disable()

	snap := loop.Snapshot()
	assert.Equal(t, 240, snap.BPM)
	assert.Equal(t, 4, snap.BeatsPerMeasure)
	assert.True(t, snap.Metronome)

	metro.fire()
	loop.Step()
	require.NotEmpty(t, rec.ticks)
	assert.True(t, rec.ticks[0])

	enqueue(ch, 4, CmdSetMetronome, Toggle)
	loop.Step()
	assert.False(t, loop.Snapshot().Metronome)
}

func TestLoopRunStopsOnQuit(t *testing.T) {
	loop, in, out, ch := newTestLoop(Options{})
	client := NewClient(ch, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		loop.Run(ctx, time.Millisecond)
		close(done)
	}()

	require.NoError(t, client.SetMode(ctx, ModeMirror))
	require.NoError(t, client.Quit(ctx))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run didn't return after quit")
	}

	in.send(midi.Event{Status: 0x90, Note: 60, Velocity: 64})
	loop.Step()
	assert.Empty(t, out.take())
}
