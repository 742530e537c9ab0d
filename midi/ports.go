package midi

import (
	"errors"
	"fmt"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// Direction of a port
type Direction int

const (
	DirInput Direction = iota
	DirOutput
)

func (d Direction) String() string {
	if d == DirOutput {
		return "output"
	}
	return "input"
}

// DeviceInfo describes one port
type DeviceInfo struct {
	ID        int
	Name      string
	Direction Direction
	IsDefault bool
}

// ErrScanTimeout is returned when the driver doesn't answer a port scan in time
var ErrScanTimeout = errors.New("midi: port scan timed out")

const scanTimeout = 3 * time.Second

type portsResult struct {
	inPorts  []drivers.In
	outPorts []drivers.Out
}

// scan lists ports with a timeout (CoreMIDI can hang)
func scan() (portsResult, error) {
	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{inPorts: gomidi.GetInPorts(), outPorts: gomidi.GetOutPorts()}
	}()

	select {
	case result := <-ch:
		return result, nil
	case <-time.After(scanTimeout):
		return portsResult{}, ErrScanTimeout
	}
}

// ListDevices returns every input and output port. The first port of each
// direction is the default.
func ListDevices() ([]DeviceInfo, error) {
	ports, err := scan()
	if err != nil {
		return nil, err
	}

	var out []DeviceInfo
	for i, p := range ports.inPorts {
		out = append(out, DeviceInfo{ID: p.Number(), Name: p.String(), Direction: DirInput, IsDefault: i == 0})
	}
	for i, p := range ports.outPorts {
		out = append(out, DeviceInfo{ID: p.Number(), Name: p.String(), Direction: DirOutput, IsDefault: i == 0})
	}
	return out, nil
}

// OpenInput opens input port id, or the default for DefaultDevice
func OpenInput(id int) (*PortInput, error) {
	ports, err := scan()
	if err != nil {
		return nil, err
	}
	if len(ports.inPorts) == 0 {
		return nil, fmt.Errorf("input %d: %w", id, ErrNoDevice)
	}
	if id == DefaultDevice {
		return NewPortInput(ports.inPorts[0])
	}
	for _, p := range ports.inPorts {
		if p.Number() == id {
			return NewPortInput(p)
		}
	}
	return nil, fmt.Errorf("input %d: %w", id, ErrNoDevice)
}

// OpenOutput opens output port id, or the default for DefaultDevice
func OpenOutput(id int) (*PortOutput, error) {
	ports, err := scan()
	if err != nil {
		return nil, err
	}
	if len(ports.outPorts) == 0 {
		return nil, fmt.Errorf("output %d: %w", id, ErrNoDevice)
	}
	if id == DefaultDevice {
		return NewPortOutput(ports.outPorts[0])
	}
	for _, p := range ports.outPorts {
		if p.Number() == id {
			return NewPortOutput(p)
		}
	}
	return nil, fmt.Errorf("output %d: %w", id, ErrNoDevice)
}

// CloseDriver releases the underlying driver. Call once at shutdown.
func CloseDriver() {
	gomidi.CloseDriver()
}
