// Package cli is the pianomirror command line
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pianomirror/console"
)

// Exit codes
const (
	ExitOK    = 0
	ExitUsage = 1 // bad arguments, config, or devices
	ExitBus   = 2 // event bus connection failed
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ExitError carries the process exit code for a failure
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

func usageErr(err error) error { return &ExitError{Code: ExitUsage, Err: err} }
func busErr(err error) error   { return &ExitError{Code: ExitBus, Err: err} }

// ExitCode maps an Execute result to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitUsage
}

// flags holds the command line values. Changed flags override the config file.
type flags struct {
	input      int
	output     int
	channel    int
	debugEcho  bool
	noEcho     bool
	list       bool
	busURL     string
	busTopic   string
	broadcast  bool
	receive    bool
	script     string
	configPath string
	verbose    bool
}

// NewRootCommand builds the pianomirror command
func NewRootCommand() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "pianomirror",
		Short: "Real-time MIDI note mirroring for left-handed playing",
		Long: `pianomirror sits between a MIDI keyboard and a sound module and remaps
notes as they are played: left hand ascending, right hand descending, or
the whole keyboard mirrored around a split point. A Lua script can take
over the mapping, a metronome can click along, and events can be shared
with other instances over Redis.

Turn off local echo on your digital piano before starting.

Examples:
  # List MIDI ports
  pianomirror --list

  # Read from port 1, write to port 2
  pianomirror -i 1 -o 2

  # Use a transform script and share playing on a Redis bus
  pianomirror --script mirror.lua --bus-url redis://localhost:6379/0`,
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.input, "input", "i", -1, "MIDI input port id (-1 = default)")
	fl.IntVarP(&f.output, "output", "o", -1, "MIDI output port id (-1 = default)")
	fl.IntVarP(&f.channel, "channel", "c", 1, "output channel 0-15")
	fl.BoolVarP(&f.debugEcho, "debug-echo", "d", false, "print every event in and out")
	fl.BoolVar(&f.noEcho, "no-echo", false, "do not write transformed events to the output")
	fl.BoolVarP(&f.list, "list", "l", false, "list MIDI ports and exit")
	fl.StringVar(&f.busURL, "bus-url", "", "Redis URL of the event bus (empty = no bus)")
	fl.StringVar(&f.busTopic, "bus-topic", "", "event bus topic")
	fl.BoolVar(&f.broadcast, "broadcast", true, "publish transformed events to the bus")
	fl.BoolVar(&f.receive, "receive", false, "play events published by other instances")
	fl.StringVar(&f.script, "script", "", "Lua transform script to load at startup")
	fl.StringVar(&f.configPath, "config", "", "config file (default ~/.config/pianomirror/config.yaml)")
	fl.BoolVar(&f.verbose, "verbose", false, "debug logging, plus a trace in ~/.config/pianomirror/debug.log")

	cmd.SetVersionTemplate("Piano Mirror {{.Version}}\n")
	return cmd
}

// SetVersionInfo records build information shown by --version
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the command line with os.Args
func Execute() error {
	cmd := NewRootCommand()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	if err := cmd.Execute(); err != nil {
		var ee *ExitError
		if !errors.As(err, &ee) {
			// cobra flag errors
			console.New(nil, cmd.ErrOrStderr()).Error(err.Error(), "run pianomirror --help for usage")
			err = usageErr(err)
		}
		return err
	}
	return nil
}
