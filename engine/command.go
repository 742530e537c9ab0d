package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrAckTimeout means the loop didn't acknowledge a command in time
	ErrAckTimeout = errors.New("engine: command not acknowledged")
	// ErrQueueFull means the command queue stayed full for the whole timeout
	ErrQueueFull = errors.New("engine: command queue full")
	// ErrStopped is returned for commands sent after the loop quit
	ErrStopped = errors.New("engine: loop stopped")
	// ErrInvalidParam is returned in the ack for out-of-range parameters
	ErrInvalidParam = errors.New("engine: invalid parameter")
	// ErrUnknownCommand is returned in the ack for unrecognised codes
	ErrUnknownCommand = errors.New("engine: unknown command")
)

// Code identifies a command
type Code int

const (
	CmdQuit Code = iota + 1
	CmdSetMode
	CmdSetSplitPoint
	CmdSetThreshold
	CmdCycleMode
	CmdSetEcho
	CmdSetDebugEcho
	CmdSetEchoChannel
	CmdSetBPM
	CmdSetTimeSignature
	CmdSetMetronome
	CmdSetNoteOffset

	// CmdAck marks an acknowledgement
	CmdAck Code = 1000
)

// Toggle as P1 of CmdSetEcho, CmdSetDebugEcho or CmdSetMetronome flips the current value
const Toggle = -1

var codeNames = map[Code]string{
	CmdQuit:             "quit",
	CmdSetMode:          "set-mode",
	CmdSetSplitPoint:    "set-split",
	CmdSetThreshold:     "set-threshold",
	CmdCycleMode:        "cycle-mode",
	CmdSetEcho:          "set-echo",
	CmdSetDebugEcho:     "set-debug-echo",
	CmdSetEchoChannel:   "set-channel",
	CmdSetBPM:           "set-bpm",
	CmdSetTimeSignature: "set-time-signature",
	CmdSetMetronome:     "set-metronome",
	CmdSetNoteOffset:    "set-offset",
	CmdAck:              "ack",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cmd(%d)", int(c))
}

// Command is a control message for the loop
type Command struct {
	Code   Code
	P1, P2 int
	seq    uint64
}

// Ack is the loop's reply to one command. Value carries the resulting
// setting (new mode, clamped bpm, on/off as 1/0).
type Ack struct {
	Seq     uint64
	Code    Code // always CmdAck
	Command Code
	Value   int
	Err     error
}

// QueueSize is the capacity of each direction of a Channel
const QueueSize = 1024

// Channel is the bounded queue pair between a control surface and the loop
type Channel struct {
	commands chan Command
	acks     chan Ack
	done     chan struct{}
	doneOnce sync.Once
}

// NewChannel creates a queue pair with size slots in each direction
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = QueueSize
	}
	return &Channel{
		commands: make(chan Command, size),
		acks:     make(chan Ack, size),
		done:     make(chan struct{}),
	}
}

// Done is closed once the loop has processed Quit
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

func (ch *Channel) markDone() {
	ch.doneOnce.Do(func() { close(ch.done) })
}

// DefaultAckTimeout bounds how long a client waits for the loop
const DefaultAckTimeout = 2 * time.Second

// Client sends ack-gated commands. Calls are serialised: each command is
// acknowledged before the next is sent.
type Client struct {
	ch      *Channel
	timeout time.Duration

	mu  sync.Mutex
	seq uint64
}

// NewClient returns a client on ch. timeout <= 0 uses DefaultAckTimeout.
func NewClient(ch *Channel, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	return &Client{ch: ch, timeout: timeout}
}

// Do sends cmd and waits for its acknowledgement. The ack's Err, if any,
// is returned alongside the ack.
func (c *Client) Do(ctx context.Context, cmd Command) (Ack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.ch.done:
		return Ack{}, ErrStopped
	default:
	}

	c.seq++
	cmd.seq = c.seq

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case c.ch.commands <- cmd:
	case <-timer.C:
		return Ack{}, fmt.Errorf("%s: %w", cmd.Code, ErrQueueFull)
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	}

	for {
		select {
		case ack := <-c.ch.acks:
			if ack.Seq != cmd.seq {
				// left over from a command that timed out
				continue
			}
			return ack, ack.Err
		case <-c.ch.done:
			if ack, ok := c.drainFor(cmd.seq); ok {
				return ack, ack.Err
			}
			return Ack{}, ErrStopped
		case <-timer.C:
			return Ack{}, fmt.Errorf("%s after %s: %w", cmd.Code, c.timeout, ErrAckTimeout)
		case <-ctx.Done():
			return Ack{}, ctx.Err()
		}
	}
}

// drainFor picks up an ack that raced with the done signal
func (c *Client) drainFor(seq uint64) (Ack, bool) {
	for {
		select {
		case ack := <-c.ch.acks:
			if ack.Seq == seq {
				return ack, true
			}
		default:
			return Ack{}, false
		}
	}
}

// Quit stops the loop
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.Do(ctx, Command{Code: CmdQuit})
	return err
}

// SetMode selects a transposition mode
func (c *Client) SetMode(ctx context.Context, m Mode) error {
	_, err := c.Do(ctx, Command{Code: CmdSetMode, P1: int(m)})
	return err
}

// CycleMode advances to the next mode and returns it
func (c *Client) CycleMode(ctx context.Context) (Mode, error) {
	ack, err := c.Do(ctx, Command{Code: CmdCycleMode})
	return Mode(ack.Value), err
}

// SetThreshold sets the quiet-mode velocity threshold (0 disables)
func (c *Client) SetThreshold(ctx context.Context, v int) error {
	_, err := c.Do(ctx, Command{Code: CmdSetThreshold, P1: v})
	return err
}

// SetSplitPoint sets the reflection axis
func (c *Client) SetSplitPoint(ctx context.Context, note int) error {
	_, err := c.Do(ctx, Command{Code: CmdSetSplitPoint, P1: note})
	return err
}

// SetBPM sets the metronome tempo and returns the applied value
func (c *Client) SetBPM(ctx context.Context, bpm int) (int, error) {
	ack, err := c.Do(ctx, Command{Code: CmdSetBPM, P1: bpm})
	return ack.Value, err
}

// SetTimeSignature applies a time signature code
func (c *Client) SetTimeSignature(ctx context.Context, code int) error {
	_, err := c.Do(ctx, Command{Code: CmdSetTimeSignature, P1: code})
	return err
}

// SetNoteOffset sets the semitone offset applied after transposition
func (c *Client) SetNoteOffset(ctx context.Context, offset int) error {
	_, err := c.Do(ctx, Command{Code: CmdSetNoteOffset, P1: offset})
	return err
}

// SetEchoChannel sets the output channel (0-15)
func (c *Client) SetEchoChannel(ctx context.Context, ch int) error {
	_, err := c.Do(ctx, Command{Code: CmdSetEchoChannel, P1: ch})
	return err
}

// Toggle flips an on/off setting (CmdSetEcho, CmdSetDebugEcho,
// CmdSetMetronome) and reports the new state
func (c *Client) Toggle(ctx context.Context, code Code) (bool, error) {
	ack, err := c.Do(ctx, Command{Code: code, P1: Toggle})
	return ack.Value == 1, err
}
