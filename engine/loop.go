package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"pianomirror/debug"
	"pianomirror/midi"
)

// DefaultPollInterval is how often Run calls Step
const DefaultPollInterval = time.Millisecond

// Publisher gets every transformed event. Publish must not block.
type Publisher interface {
	Publish(ev midi.Event)
}

// NoticeKind classifies a Notice
type NoticeKind int

const (
	NoticeEcho NoticeKind = iota
	NoticeModeChange
	NoticeScriptError
	NoticeDropped
	NoticeWriteError
)

// Notice reports something the operator may want to see. The loop never
// prints; it hands notices to whoever drains Notices.
type Notice struct {
	Kind NoticeKind
	In   midi.Event
	Out  midi.Event
	Mode Mode
	Err  error
}

// Snapshot is a read-only copy of loop state for display
type Snapshot struct {
	Params          Params
	BPM             int
	BeatsPerMeasure int
	Beat            int
	Measure         int
	Metronome       bool
	Stopped         bool
}

// Options configures a Loop. Zero values pick defaults.
type Options struct {
	Params    *Params
	Metronome *Metronome
	Script    Script
	Bus       Publisher
}

// Loop is the real-time event loop. Step runs on a single goroutine; all
// other goroutines talk to it through the command channel, Inject, or the
// script host's handle swap.
type Loop struct {
	in  midi.Input
	out midi.Output
	ch  *Channel

	params  Params
	metro   *Metronome
	script  Script
	bus     Publisher
	stopped bool

	inject  chan midi.Event
	notices chan Notice

	snapshot atomic.Pointer[Snapshot]
}

// NewLoop wires a loop between in and out, controlled through ch
func NewLoop(in midi.Input, out midi.Output, ch *Channel, opts Options) *Loop {
	l := &Loop{
		in:      in,
		out:     out,
		ch:      ch,
		params:  DefaultParams(),
		metro:   opts.Metronome,
		script:  opts.Script,
		bus:     opts.Bus,
		inject:  make(chan midi.Event, midi.InputQueueSize),
		notices: make(chan Notice, 256),
	}
	if opts.Params != nil {
		l.params = *opts.Params
	}
	if l.metro == nil {
		l.metro = NewMetronome(nil)
	}
	l.publishSnapshot()
	return l
}

// Notices returns the operator notice stream
func (l *Loop) Notices() <-chan Notice {
	return l.notices
}

// Snapshot returns the state as of the last change
func (l *Loop) Snapshot() Snapshot {
	return *l.snapshot.Load()
}

// Inject queues an event from another source (the bus) for output on the
// next Step. Returns false if the queue is full.
func (l *Loop) Inject(ev midi.Event) bool {
	select {
	case l.inject <- ev:
		return true
	default:
		return false
	}
}

// Run calls Step every interval until ctx is done or the loop quits
func (l *Loop) Run(ctx context.Context, interval time.Duration) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	done := l.ch.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step is one iteration: metronome, commands, input, injected events
func (l *Loop) Step() {
	if l.stopped {
		return
	}

	if l.metro.Do() {
		debug.Log("metro", "beat=%d measure=%d", l.metro.Beat(), l.metro.Measure())
		l.publishSnapshot()
	}

	if l.drainCommands() {
		return
	}

	n := l.in.Pending()
	for i := 0; i < n; i++ {
		ev, err := l.in.Read()
		if err != nil {
			if errors.Is(err, midi.ErrBufferOverflow) {
				debug.LogEvery(10, "loop", "input overflow, event dropped")
				l.notify(Notice{Kind: NoticeDropped, Err: err})
			}
			continue
		}
		l.handle(ev)
	}

	l.drainInjected()
}

// drainCommands applies every queued command in order. The snapshot is
// refreshed before each ack so a caller that got its ack sees the change.
// Returns true if the loop stopped.
func (l *Loop) drainCommands() bool {
	for {
		select {
		case cmd := <-l.ch.commands:
			if cmd.Code == CmdQuit {
				l.stop()
				l.ack(cmd, 0, nil)
				l.ch.markDone()
				return true
			}
			v, err := l.apply(cmd)
			l.publishSnapshot()
			l.ack(cmd, v, err)
		default:
			return false
		}
	}
}

func (l *Loop) ack(cmd Command, value int, err error) {
	select {
	case l.ch.acks <- Ack{Seq: cmd.seq, Code: CmdAck, Command: cmd.Code, Value: value, Err: err}:
	default:
		debug.Log("loop", "ack queue full, dropped ack for %s", cmd.Code)
	}
}

func (l *Loop) stop() {
	l.stopped = true
	l.metro.Disable()
	l.publishSnapshot()
	debug.Log("loop", "quit processed")
}

func (l *Loop) apply(cmd Command) (int, error) {
	p := &l.params
	debug.Log("cmd", "%s p1=%d p2=%d", cmd.Code, cmd.P1, cmd.P2)

	switch cmd.Code {
	case CmdSetMode:
		m := Mode(cmd.P1)
		if !m.Valid() {
			return int(p.Mode), fmt.Errorf("mode %d: %w", cmd.P1, ErrInvalidParam)
		}
		p.Mode = m
		return int(m), nil

	case CmdCycleMode:
		p.Mode = p.Mode.Next()
		return int(p.Mode), nil

	case CmdSetSplitPoint:
		if cmd.P1 < 0 || cmd.P1 > 127 {
			return int(p.Split), fmt.Errorf("split point %d: %w", cmd.P1, ErrInvalidParam)
		}
		p.Split = uint8(cmd.P1)
		return cmd.P1, nil

	case CmdSetThreshold:
		if cmd.P1 < 0 || cmd.P1 > 127 {
			return int(p.Threshold), fmt.Errorf("threshold %d: %w", cmd.P1, ErrInvalidParam)
		}
		p.Threshold = uint8(cmd.P1)
		return cmd.P1, nil

	case CmdSetEchoChannel:
		if cmd.P1 < 0 || cmd.P1 > 15 {
			return int(p.EchoChannel), fmt.Errorf("channel %d: %w", cmd.P1, ErrInvalidParam)
		}
		p.EchoChannel = uint8(cmd.P1)
		return cmd.P1, nil

	case CmdSetNoteOffset:
		if cmd.P1 < -127 || cmd.P1 > 127 {
			return p.Offset, fmt.Errorf("offset %d: %w", cmd.P1, ErrInvalidParam)
		}
		p.Offset = cmd.P1
		return cmd.P1, nil

	case CmdSetEcho:
		p.EchoEnabled = flag(p.EchoEnabled, cmd.P1)
		return boolInt(p.EchoEnabled), nil

	case CmdSetDebugEcho:
		p.DebugEcho = flag(p.DebugEcho, cmd.P1)
		return boolInt(p.DebugEcho), nil

	case CmdSetBPM:
		return l.metro.SetBPM(cmd.P1), nil

	case CmdSetTimeSignature:
		if err := l.metro.SetTimeSignature(cmd.P1); err != nil {
			return l.metro.BeatsPerMeasure(), err
		}
		return l.metro.BeatsPerMeasure(), nil

	case CmdSetMetronome:
		on := flag(l.metro.Enabled(), cmd.P1)
		if on {
			l.metro.Enable()
		} else {
			l.metro.Disable()
		}
		return boolInt(on), nil
	}

	return 0, fmt.Errorf("%s: %w", cmd.Code, ErrUnknownCommand)
}

// handle runs one input event through the transform and echo policy
func (l *Loop) handle(ev midi.Event) {
	p := &l.params

	if IsControlNote(ev) {
		p.Mode = p.Mode.Next()
		l.notify(Notice{Kind: NoticeModeChange, In: ev, Mode: p.Mode})
		l.publishSnapshot()
		return
	}

	out, err := Select(*p, l.script).Transform(ev)
	if err != nil {
		l.notify(Notice{Kind: NoticeScriptError, In: ev, Err: err})
		out = ev
	}

	out = out.WithChannel(p.EchoChannel)
	if out.IsNote() {
		out.Note = ApplyOffset(out.Note, p.Offset)
	}

	if p.EchoEnabled && p.ShouldEcho(ev) {
		if err := l.out.Write(out); err != nil {
			l.notify(Notice{Kind: NoticeWriteError, Out: out, Err: err})
		}
	}

	if l.bus != nil {
		l.bus.Publish(out)
	}

	if p.DebugEcho {
		l.notify(Notice{Kind: NoticeEcho, In: ev, Out: out})
	}
}

func (l *Loop) drainInjected() {
	for {
		select {
		case ev := <-l.inject:
			if !l.params.EchoEnabled {
				continue
			}
			if err := l.out.Write(ev); err != nil {
				l.notify(Notice{Kind: NoticeWriteError, Out: ev, Err: err})
			}
		default:
			return
		}
	}
}

func (l *Loop) notify(n Notice) {
	select {
	case l.notices <- n:
	default:
	}
}

func (l *Loop) publishSnapshot() {
	l.snapshot.Store(&Snapshot{
		Params:          l.params,
		BPM:             l.metro.BPM(),
		BeatsPerMeasure: l.metro.BeatsPerMeasure(),
		Beat:            l.metro.Beat(),
		Measure:         l.metro.Measure(),
		Metronome:       l.metro.Enabled(),
		Stopped:         l.stopped,
	})
}

// flag resolves an on/off command parameter against the current value
func flag(cur bool, p int) bool {
	if p == Toggle {
		return !cur
	}
	return p != 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
