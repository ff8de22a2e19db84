package driver

import (
	"go.bug.st/serial"
)

// Bugst opens ports through go.bug.st/serial.
type Bugst struct{}

var _ Driver = Bugst{}

func (Bugst) Name() string { return "bugst" }

// Open opens name and applies the read timeout. A read that times out
// returns (0, nil), which the reader treats as an empty poll.
func (Bugst) Open(name string, s Settings) (Port, error) {
	if s.FlowControl != FlowNone {
		return nil, invalidInput("flow control %s is not supported by the bugst driver", s.FlowControl)
	}
	mode := &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		Parity:   bugstParity(s.Parity),
		StopBits: bugstStopBits(s.StopBits),
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, Classify(err)
	}
	if err := p.SetReadTimeout(s.Timeout); err != nil {
		_ = p.Close()
		return nil, Classify(err)
	}
	return p, nil
}

func (Bugst) Ports() ([]PortDetails, error) { return listPorts() }

func bugstParity(p Parity) serial.Parity {
	switch p {
	case ParityOdd:
		return serial.OddParity
	case ParityEven:
		return serial.EvenParity
	default:
		return serial.NoParity
	}
}

func bugstStopBits(sb StopBits) serial.StopBits {
	if sb == StopBitsTwo {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}
