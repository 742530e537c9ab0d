package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// PortOutput writes messages to a hardware output port
type PortOutput struct {
	name    string
	outPort drivers.Out
	send    func(msg gomidi.Message) error
}

// NewPortOutput opens outPort for sending
func NewPortOutput(outPort drivers.Out) (*PortOutput, error) {
	send, err := gomidi.SendTo(outPort)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return &PortOutput{
		name:    outPort.String(),
		outPort: outPort,
		send:    send,
	}, nil
}

// Name returns the port name
func (out *PortOutput) Name() string {
	return out.name
}

func (out *PortOutput) Write(ev Event) error {
	return out.send(gomidi.Message(ev.Bytes()))
}

func (out *PortOutput) Close() error {
	return out.outPort.Close()
}
