// Package driver binds the native serial libraries used by the server.
//
// Two implementations are available: Bugst (go.bug.st/serial, the default)
// and Tarm (github.com/tarm/serial). Both enumerate through the
// go.bug.st/serial/enumerator package and report failures as *Error values
// carrying a coarse Kind so callers can branch without knowing the library.
package driver

import (
	"fmt"
	"strings"
	"time"
)

// Port is an open serial device handle.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Driver opens and enumerates serial ports.
type Driver interface {
	Name() string
	Open(name string, s Settings) (Port, error)
	Ports() ([]PortDetails, error)
}

type FlowControl int

const (
	FlowNone FlowControl = iota
	FlowSoftware
	FlowHardware
)

func (f FlowControl) String() string {
	switch f {
	case FlowSoftware:
		return "software"
	case FlowHardware:
		return "hardware"
	default:
		return "none"
	}
}

type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return "none"
	}
}

type StopBits int

const (
	StopBitsOne StopBits = iota
	StopBitsTwo
)

// Settings is the line configuration applied when a port is opened.
type Settings struct {
	BaudRate    int
	DataBits    int
	FlowControl FlowControl
	Parity      Parity
	StopBits    StopBits
	Timeout     time.Duration // read timeout
}

// DefaultSettings returns 115200 8N1, no flow control, 500ms read timeout.
func DefaultSettings() Settings {
	return Settings{
		BaudRate:    115200,
		DataBits:    8,
		FlowControl: FlowNone,
		Parity:      ParityNone,
		StopBits:    StopBitsOne,
		Timeout:     500 * time.Millisecond,
	}
}

func (s Settings) String() string {
	stop := 1
	if s.StopBits == StopBitsTwo {
		stop = 2
	}
	return fmt.Sprintf("%d %d%s%d flow=%s timeout=%s", s.BaudRate, s.DataBits,
		strings.ToUpper(s.Parity.String()[:1]), stop, s.FlowControl, s.Timeout)
}

// TransportKind classifies the physical/logical link of a port.
type TransportKind int

const (
	TransportUnknown TransportKind = iota
	TransportUSB
	TransportPCI
	TransportBluetooth
)

func (t TransportKind) String() string {
	switch t {
	case TransportUSB:
		return "usb"
	case TransportPCI:
		return "pci"
	case TransportBluetooth:
		return "bluetooth"
	default:
		return "unknown"
	}
}

// PortDetails describes one enumerated port. USB fields are empty for other transports.
type PortDetails struct {
	Name         string
	Transport    TransportKind
	Manufacturer string
	Product      string
	VID          string
	PID          string
	SerialNumber string
}

// New returns the driver registered under name ("bugst" or "tarm").
func New(name string) (Driver, error) {
	switch name {
	case "", "bugst":
		return Bugst{}, nil
	case "tarm":
		return Tarm{}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q (use bugst|tarm)", name)
	}
}
