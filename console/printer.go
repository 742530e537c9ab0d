// Package console formats operator-facing output: colored status lines,
// error reports, the banner, and the trace of loop notices.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"pianomirror/engine"
	"pianomirror/midi"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	dim    = color.New(color.Faint)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(Plasma.Color(RoleAccent))
	noteStyle  = lipgloss.NewStyle().Foreground(Plasma.Color(RoleWarning))
)

// Printer writes to an operator console
type Printer struct {
	out io.Writer
	err io.Writer
}

// New returns a printer on out and errOut (stdout/stderr when nil). The
// printer may be shared between goroutines.
func New(out, errOut io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	mu := &sync.Mutex{}
	return &Printer{out: &lockedWriter{mu: mu, w: out}, err: &lockedWriter{mu: mu, w: errOut}}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Banner prints the program title and the local-echo reminder
func (p *Printer) Banner(version string) {
	fmt.Fprintln(p.out, titleStyle.Render("Piano Mirror "+version))
	fmt.Fprintln(p.out, noteStyle.Render("NOTE: Make sure to turn off local echo mode on your digital piano."))
}

// Success prints a confirmation in green
func (p *Printer) Success(format string, a ...any) {
	green.Fprintf(p.out, format+"\n", a...)
}

// Info prints an informational message in the default color
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintf(p.out, format+"\n", a...)
}

// Prompt asks for input on the current line
func (p *Printer) Prompt(text string) {
	fmt.Fprint(p.out, text)
}

// ModeActive announces the transposition mode
func (p *Printer) ModeActive(m engine.Mode) {
	p.Success("%s mode active", capitalize(m.String()))
}

// Warning prints a warning in yellow
func (p *Printer) Warning(format string, a ...any) {
	yellow.Fprintf(p.err, "warning: "+format+"\n", a...)
}

// Error prints title in red with an optional explanation and returns an
// error carrying the title
func (p *Printer) Error(title string, explanation string) error {
	red.Fprintf(p.err, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(p.err, "%s\n", explanation)
	}
	return fmt.Errorf("%s", title)
}

// Devices prints a port table
func (p *Printer) Devices(devices []midi.DeviceInfo) {
	if len(devices) == 0 {
		p.Warning("no MIDI ports found")
		return
	}
	for _, d := range devices {
		mark := " "
		if d.IsDefault {
			mark = "*"
		}
		fmt.Fprintf(p.out, "%s %3d  %-6s  %s\n", mark, d.ID, d.Direction, d.Name)
	}
	dim.Fprintln(p.out, "* = default")
}

// Status prints a loop snapshot
func (p *Printer) Status(s engine.Snapshot, script string) {
	prm := s.Params
	cyan.Fprintf(p.out, "mode: %s\n", prm.Mode)
	fmt.Fprintf(p.out, "split point: %d  offset: %+d  channel: %d\n", prm.Split, prm.Offset, prm.EchoChannel)

	quiet := "off"
	if prm.Threshold > 0 {
		quiet = fmt.Sprintf("velocity < %d", prm.Threshold)
	}
	fmt.Fprintf(p.out, "quiet mode: %s  echo: %s  debug echo: %s\n", quiet, onOff(prm.EchoEnabled), onOff(prm.DebugEcho))

	sig := "free"
	if s.BeatsPerMeasure > 0 {
		sig = fmt.Sprintf("%d beats", s.BeatsPerMeasure)
	}
	fmt.Fprintf(p.out, "metronome: %s  %d bpm  %s  measure %d beat %d\n", onOff(s.Metronome), s.BPM, sig, s.Measure, s.Beat)

	if script == "" {
		script = "none"
	}
	fmt.Fprintf(p.out, "script: %s\n", script)
}

// Notice prints one loop notice
func (p *Printer) Notice(n engine.Notice) {
	switch n.Kind {
	case engine.NoticeEcho:
		style := Plasma.VelocityStyle(n.In.Velocity)
		fmt.Fprintf(p.out, "in  %s\nout %s\n", style.Render(n.In.String()), style.Render(n.Out.String()))
	case engine.NoticeModeChange:
		p.ModeActive(n.Mode)
	case engine.NoticeScriptError:
		yellow.Fprintf(p.err, "script: %v (event passed through)\n", n.Err)
	case engine.NoticeWriteError:
		yellow.Fprintf(p.err, "output: %v\n", n.Err)
	case engine.NoticeDropped:
		dim.Fprintln(p.err, "input overflow, event dropped")
	}
}

// Follow prints notices until ctx is done or notices is closed
func (p *Printer) Follow(ctx context.Context, notices <-chan engine.Notice) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			p.Notice(n)
		}
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
