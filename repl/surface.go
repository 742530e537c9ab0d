// Package repl is the interactive control surface. It reads one command
// per line and changes loop settings only through the engine's command
// client, so every change is acknowledged before the next prompt.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pianomirror/console"
	"pianomirror/debug"
	"pianomirror/engine"
	"pianomirror/script"
)

// Help is printed at startup and by the h command
const Help = `commands:
 0        no transposition
 1        left hand ascending
 2        right hand descending
 3        keyboard mirror
 4 <n>    quiet mode threshold (0 = off)
 5        cycle to next mode
 6        toggle debug echo
 7 <bpm>  metronome tempo
 8 <0-5>  time signature (0 free, 1 2/4, 2 3/4, 3 4/4, 4 5/4, 5 6/8)
 9        toggle metronome
 10 <n>   note offset in semitones
 11 <path> load transform script
 12       unload script
 13       reload script
 14 <n>   split point
 s        status
 h        help
 q        quit`

// Surface is the command reader
type Surface struct {
	client   *engine.Client
	host     *script.Host
	snapshot func() engine.Snapshot
	out      *console.Printer
}

// New returns a surface driving client. snapshot supplies the status view.
func New(client *engine.Client, host *script.Host, snapshot func() engine.Snapshot, out *console.Printer) *Surface {
	return &Surface{
		client:   client,
		host:     host,
		snapshot: snapshot,
		out:      out,
	}
}

// Run reads commands from r until q, end of input, or ctx is done. The loop
// is told to quit before Run returns in the first two cases.
func (s *Surface) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return s.quit(ctx)
			}
			quit, err := s.exec(ctx, line, lines)
			if err != nil {
				s.report(err)
			}
			if quit {
				return s.quit(ctx)
			}
		}
	}
}

func (s *Surface) quit(ctx context.Context) error {
	err := s.client.Quit(ctx)
	if errors.Is(err, engine.ErrStopped) {
		return nil
	}
	return err
}

// exec runs one command line. next supplies the argument line when the
// command needs one and it was not given inline.
func (s *Surface) exec(ctx context.Context, line string, next <-chan string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name := fields[0]
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), name))
	debug.Log("repl", "command %q arg %q", name, arg)

	argument := func(prompt string) (string, error) {
		if arg != "" {
			return arg, nil
		}
		s.out.Prompt(prompt)
		select {
		case l, ok := <-next:
			if !ok {
				return "", io.ErrUnexpectedEOF
			}
			return strings.TrimSpace(l), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	number := func(prompt string) (int, error) {
		v, err := argument(prompt)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		return n, nil
	}

	switch name {
	case "q":
		return true, nil

	case "0", "1", "2", "3":
		m := engine.Mode(name[0] - '0')
		if err := s.client.SetMode(ctx, m); err != nil {
			return false, err
		}
		s.out.ModeActive(m)

	case "4":
		n, err := number("Enter velocity threshold, or 0 to disable quiet mode: ")
		if err != nil {
			return false, err
		}
		if err := s.client.SetThreshold(ctx, n); err != nil {
			return false, err
		}
		if n == 0 {
			s.out.Success("quiet mode turned off")
		} else {
			s.out.Success("threshold set to %d", n)
		}

	case "5":
		m, err := s.client.CycleMode(ctx)
		if err != nil {
			return false, err
		}
		s.out.ModeActive(m)

	case "6":
		on, err := s.client.Toggle(ctx, engine.CmdSetDebugEcho)
		if err != nil {
			return false, err
		}
		s.out.Success("debug echo %s", onOff(on))

	case "7":
		n, err := number("Enter tempo in bpm: ")
		if err != nil {
			return false, err
		}
		bpm, err := s.client.SetBPM(ctx, n)
		if err != nil {
			return false, err
		}
		if bpm != n {
			s.out.Warning("tempo clamped to %d bpm", bpm)
		}
		s.out.Success("metronome at %d bpm", bpm)

	case "8":
		n, err := number("Enter time signature (0 free, 1 2/4, 2 3/4, 3 4/4, 4 5/4, 5 6/8): ")
		if err != nil {
			return false, err
		}
		if err := s.client.SetTimeSignature(ctx, n); err != nil {
			return false, err
		}
		s.out.Success("time signature %s", engine.TimeSignatureName(n))

	case "9":
		on, err := s.client.Toggle(ctx, engine.CmdSetMetronome)
		if err != nil {
			return false, err
		}
		s.out.Success("metronome %s", onOff(on))

	case "10":
		n, err := number("Enter note offset in semitones: ")
		if err != nil {
			return false, err
		}
		if err := s.client.SetNoteOffset(ctx, n); err != nil {
			return false, err
		}
		s.out.Success("note offset %+d", n)

	case "11":
		path, err := argument("Enter script path: ")
		if err != nil {
			return false, err
		}
		h, err := s.host.Load(path)
		if err != nil {
			return false, err
		}
		s.out.Success("script %s loaded", h.Path)

	case "12":
		if !s.host.Loaded() {
			s.out.Warning("no script loaded")
			return false, nil
		}
		s.host.Unload()
		s.out.Success("script unloaded, built-in modes active")

	case "13":
		h, err := s.host.Reload()
		if err != nil {
			return false, err
		}
		s.out.Success("script %s reloaded", h.Path)

	case "14":
		n, err := number("Enter split point (0-127): ")
		if err != nil {
			return false, err
		}
		if err := s.client.SetSplitPoint(ctx, n); err != nil {
			return false, err
		}
		s.out.Success("split point set to %d", n)

	case "s":
		path := ""
		if h := s.host.Current(); h != nil {
			path = h.Path
		}
		s.out.Status(s.snapshot(), path)

	case "h", "?":
		s.out.Info("%s", Help)

	default:
		s.out.Warning("unknown command %q, h for help", name)
	}
	return false, nil
}

func (s *Surface) report(err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidParam):
		s.out.Error("invalid value", err.Error())
	case errors.Is(err, engine.ErrAckTimeout):
		s.out.Error("loop not responding", err.Error())
	case errors.Is(err, engine.ErrStopped):
		s.out.Error("loop stopped", "")
	case errors.Is(err, script.ErrNotLoaded):
		s.out.Error("no script loaded", "use 11 <path> first")
	default:
		s.out.Error(err.Error(), "")
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
