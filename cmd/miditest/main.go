package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"pianomirror/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	defer midi.CloseDriver()

	switch os.Args[1] {
	case "list":
		listPorts()
	case "monitor":
		monitor(portArg(2))
	case "send":
		sendNote(portArg(2), noteArg(3))
	case "click":
		click(portArg(2))
	case "poll":
		pollDevices()
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list               - List all MIDI ports")
	fmt.Println("  monitor [in]       - Print incoming events")
	fmt.Println("  send [out] [note]  - Play one note (default middle D)")
	fmt.Println("  click [out]        - Play one bar of metronome clicks")
	fmt.Println("  poll               - Poll for device changes")
}

func portArg(i int) int {
	if len(os.Args) <= i {
		return midi.DefaultDevice
	}
	id, err := strconv.Atoi(os.Args[i])
	if err != nil {
		fmt.Printf("Bad port id %q\n", os.Args[i])
		os.Exit(1)
	}
	return id
}

func noteArg(i int) uint8 {
	if len(os.Args) <= i {
		return 62
	}
	n, err := strconv.Atoi(os.Args[i])
	if err != nil || n < 0 || n > 127 {
		fmt.Printf("Bad note %q\n", os.Args[i])
		os.Exit(1)
	}
	return uint8(n)
}

func listPorts() {
	fmt.Println("(waiting up to 3 seconds...)")

	devices, err := midi.ListDevices()
	if err != nil {
		fmt.Printf("\n%v\n", err)
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}

	fmt.Println("=== MIDI Input Ports ===")
	printPorts(devices, midi.DirInput)
	fmt.Println("\n=== MIDI Output Ports ===")
	printPorts(devices, midi.DirOutput)
}

func printPorts(devices []midi.DeviceInfo, dir midi.Direction) {
	for _, d := range devices {
		if d.Direction != dir {
			continue
		}
		mark := ""
		if d.IsDefault {
			mark = " (default)"
		}
		fmt.Printf("  %d: %s%s\n", d.ID, d.Name, mark)
	}
}

func monitor(id int) {
	in, err := midi.OpenInput(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer in.Close()

	fmt.Println("Play something. Ctrl+C to exit.")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for n := in.Pending(); n > 0; n-- {
				ev, err := in.Read()
				if err != nil {
					fmt.Printf("  %v\n", err)
					continue
				}
				fmt.Printf("[%8.3fs] %s\n", time.Since(start).Seconds(), ev)
			}
		}
	}
}

func sendNote(id int, note uint8) {
	out, err := midi.OpenOutput(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer out.Close()

	fmt.Printf("Sending note %d on channel 1...\n", note)
	on := midi.Event{Status: midi.NoteOn | 1, Note: note, Velocity: 100}
	if err := out.Write(on); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	time.Sleep(500 * time.Millisecond)
	out.Write(midi.Event{Status: midi.NoteOff | 1, Note: note})
	fmt.Println("Done!")
}

func click(id int) {
	out, err := midi.OpenOutput(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer out.Close()

	sink := midi.NewClickSink(out)
	beats := []string{"1", "2", "3", "4"}
	for i := range beats {
		sink.Tick(i == 0)
		fmt.Printf("%s ", beats[i])
		time.Sleep(600 * time.Millisecond)
	}
	fmt.Println("\nDone!")
}

func pollDevices() {
	fmt.Println("Polling for device changes every 2 seconds...")
	fmt.Println("Connect/disconnect your keyboard to test. Ctrl+C to exit.")

	last := ""

	for {
		devices, err := midi.ListDevices()
		if err != nil {
			fmt.Printf("\n[%s] %v\n", time.Now().Format("15:04:05"), err)
			time.Sleep(2 * time.Second)
			continue
		}

		var inNames, outNames []string
		for _, d := range devices {
			if d.Direction == midi.DirInput {
				inNames = append(inNames, d.Name)
			} else {
				outNames = append(outNames, d.Name)
			}
		}

		current := strings.Join(inNames, ",") + "|" + strings.Join(outNames, ",")
		if current != last {
			fmt.Printf("\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
			fmt.Printf("  Inputs: %v\n", inNames)
			fmt.Printf("  Outputs: %v\n", outNames)
			last = current
		}

		time.Sleep(2 * time.Second)
	}
}
