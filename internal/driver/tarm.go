package driver

import (
	"github.com/tarm/serial"
)

// Tarm opens ports through github.com/tarm/serial. Enumeration is shared
// with Bugst because tarm has none. On POSIX a read timeout surfaces as io.EOF.
type Tarm struct{}

var _ Driver = Tarm{}

func (Tarm) Name() string { return "tarm" }

func (Tarm) Open(name string, s Settings) (Port, error) {
	if s.FlowControl != FlowNone {
		return nil, invalidInput("flow control %s is not supported by the tarm driver", s.FlowControl)
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		return nil, invalidInput("invalid data bits %d", s.DataBits)
	}
	cfg := &serial.Config{
		Name:        name,
		Baud:        s.BaudRate,
		ReadTimeout: s.Timeout,
		Size:        byte(s.DataBits),
		Parity:      tarmParity(s.Parity),
		StopBits:    tarmStopBits(s.StopBits),
	}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, Classify(err)
	}
	return p, nil
}

func (Tarm) Ports() ([]PortDetails, error) { return listPorts() }

func tarmParity(p Parity) serial.Parity {
	switch p {
	case ParityOdd:
		return serial.ParityOdd
	case ParityEven:
		return serial.ParityEven
	default:
		return serial.ParityNone
	}
}

func tarmStopBits(sb StopBits) serial.StopBits {
	if sb == StopBitsTwo {
		return serial.Stop2
	}
	return serial.Stop1
}
