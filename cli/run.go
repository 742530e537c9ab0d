package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pianomirror/bus"
	"pianomirror/config"
	"pianomirror/console"
	"pianomirror/debug"
	"pianomirror/engine"
	"pianomirror/midi"
	"pianomirror/repl"
	"pianomirror/script"
)

// Ports are the opened devices and how to release them
type Ports struct {
	In    midi.Input
	Out   midi.Output
	Close func()
}

// Device access, replaced in tests
var (
	listDevices = midi.ListDevices
	openPorts   = openDevicePorts
)

func openDevicePorts(input, output int) (*Ports, error) {
	in, err := midi.OpenInput(input)
	if err != nil {
		midi.CloseDriver()
		return nil, err
	}
	out, err := midi.OpenOutput(output)
	if err != nil {
		in.Close()
		midi.CloseDriver()
		return nil, err
	}
	return &Ports{
		In:  in,
		Out: out,
		Close: func() {
			in.Close()
			out.Close()
			midi.CloseDriver()
		},
	}, nil
}

// apply copies flags the user actually set over the loaded config
func (f *flags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("input") {
		cfg.Input = f.input
	}
	if fs.Changed("output") {
		cfg.Output = f.output
	}
	if fs.Changed("channel") {
		cfg.EchoChannel = f.channel
	}
	if fs.Changed("debug-echo") {
		cfg.DebugEcho = f.debugEcho
	}
	if fs.Changed("no-echo") {
		cfg.NoEcho = f.noEcho
	}
	if fs.Changed("bus-url") {
		cfg.Bus.URL = f.busURL
	}
	if fs.Changed("bus-topic") {
		cfg.Bus.Topic = f.busTopic
	}
	if fs.Changed("broadcast") {
		cfg.Bus.Broadcast = f.broadcast
	}
	if fs.Changed("receive") {
		cfg.Bus.Receive = f.receive
	}
	if fs.Changed("script") {
		cfg.Script = f.script
	}
}

func run(cmd *cobra.Command, f *flags) error {
	out := console.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := debug.Init(cmd.ErrOrStderr(), f.verbose)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return usageErr(out.Error("Invalid configuration", err.Error()))
	}
	f.apply(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return usageErr(out.Error("Invalid arguments", err.Error()))
	}

	if f.verbose {
		if err := debug.Enable(debug.DefaultPath()); err != nil {
			out.Warning("could not open debug log: %v", err)
		} else {
			defer debug.Disable()
		}
	}

	if f.list {
		devices, err := listDevices()
		if err != nil {
			return usageErr(out.Error("Could not list MIDI ports", err.Error()))
		}
		out.Devices(devices)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return session(ctx, cmd, cfg, out, logger)
}

// session runs the loop and the control surface until quit
func session(ctx context.Context, cmd *cobra.Command, cfg *config.Config, out *console.Printer, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out.Banner(version)

	ports, err := openPorts(cfg.Input, cfg.Output)
	if err != nil {
		return usageErr(out.Error("Could not open MIDI devices", fmt.Sprintf("%v\nrun pianomirror --list to see available ports", err)))
	}
	defer ports.Close()

	host := script.NewHost(logger)
	defer host.Close()

	metro := engine.NewMetronome(midi.NewClickSink(ports.Out))
	metro.SetBPM(cfg.BPM)
	if err := metro.SetTimeSignature(cfg.TimeSignature); err != nil {
		return usageErr(out.Error("Invalid time signature", err.Error()))
	}
	if cfg.Metronome {
		metro.Enable()
	}

	params := engine.DefaultParams()
	params.Split = uint8(cfg.SplitPoint)
	params.Threshold = uint8(cfg.Threshold)
	params.EchoChannel = uint8(cfg.EchoChannel)
	params.EchoEnabled = !cfg.NoEcho
	params.DebugEcho = cfg.DebugEcho

	opts := engine.Options{Params: &params, Metronome: metro, Script: host}

	var client *bus.Client
	if cfg.Bus.URL != "" {
		client, err = bus.Connect(ctx, cfg.Bus.URL, cfg.Bus.Topic, logger)
		if err != nil {
			return busErr(out.Error("Could not connect to the event bus", err.Error()))
		}
		defer client.Close()
		out.Info("event bus %s on %s", cfg.Bus.Topic, client.Channel())

		if cfg.Bus.Broadcast {
			pub := client.NewPublisher(0)
			go pub.Run(ctx)
			opts.Bus = pub
		}
	}

	ch := engine.NewChannel(engine.QueueSize)
	loop := engine.NewLoop(ports.In, ports.Out, ch, opts)

	if client != nil && cfg.Bus.Receive {
		sub, err := client.Subscribe(ctx, func(ev midi.Event) {
			if !loop.Inject(ev) {
				debug.Log("bus", "inject queue full, dropped %s", ev)
			}
		})
		if err != nil {
			return busErr(out.Error("Could not subscribe to the event bus", err.Error()))
		}
		defer sub.Close()
		go func() {
			for err := range sub.Errors() {
				logger.Warn("bus message ignored", "err", err)
			}
		}()
	}

	if cfg.Script != "" {
		if h, err := host.Load(cfg.Script); err != nil {
			out.Error("Could not load script", err.Error())
		} else {
			out.Success("script %s loaded", h.Path)
		}
	}

	watcher := script.NewWatcher(host, cfg.WatchInterval)
	watcher.OnReload = func(path string, err error) {
		if err != nil {
			out.Error("Script reload failed, previous version still active", err.Error())
			return
		}
		out.Success("script %s reloaded", path)
	}
	go watcher.Run(ctx)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx, cfg.PollInterval)
	}()
	go out.Follow(ctx, loop.Notices())

	out.ModeActive(params.Mode)
	out.Info("%s", repl.Help)

	surface := repl.New(engine.NewClient(ch, cfg.AckTimeout), host, loop.Snapshot, out)
	err = surface.Run(ctx, cmd.InOrStdin())

	cancel()
	<-loopDone

	if err != nil && !errors.Is(err, context.Canceled) {
		return usageErr(out.Error("Control surface stopped", err.Error()))
	}
	return nil
}
