package serialport

import (
	"math"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/driver"
)

const (
	DefaultBaudRate  = 115200
	DefaultTimeout   = 500 * time.Millisecond
	DefaultInterval  = 200 * time.Millisecond
	DefaultChunkSize = 1024
	// MaxChunkSize bounds the buffer a single reader allocates.
	MaxChunkSize = 1 << 20
)

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = uint64(math.MaxInt64 / int64(time.Millisecond))

// Millis converts a wire millisecond count, rejecting values that would
// overflow a time.Duration.
func Millis(field string, ms uint64) (time.Duration, error) {
	if ms > maxMillis {
		return 0, InvalidInput("%s of %d ms is out of range", field, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ConnectOptions carries the optional line settings of connect_port. Nil
// fields take their defaults; unrecognized values fall back silently the
// same way (data bits outside 5..8 become 8, unknown parity becomes none).
type ConnectOptions struct {
	BaudRate    *int    `json:"baud_rate,omitempty"`
	DataBits    *int    `json:"data_bits,omitempty"`
	FlowControl *string `json:"flow_control,omitempty"`
	Parity      *string `json:"parity,omitempty"`
	StopBits    *int    `json:"stop_bits,omitempty"`
	TimeoutMs   *uint64 `json:"timeout,omitempty"`
}

// Validate rejects values that cannot be turned into driver settings.
func (o ConnectOptions) Validate() error {
	if o.TimeoutMs != nil {
		if _, err := Millis("timeout", *o.TimeoutMs); err != nil {
			return err
		}
	}
	return nil
}

// Settings resolves o into concrete driver settings. Call Validate first.
func (o ConnectOptions) Settings() driver.Settings {
	s := driver.DefaultSettings()
	if o.BaudRate != nil {
		s.BaudRate = *o.BaudRate
	}
	s.DataBits = ParseDataBits(o.DataBits)
	s.FlowControl = ParseFlowControl(o.FlowControl)
	s.Parity = ParseParity(o.Parity)
	s.StopBits = ParseStopBits(o.StopBits)
	if o.TimeoutMs != nil {
		s.Timeout = time.Duration(*o.TimeoutMs) * time.Millisecond
	}
	return s
}

func ParseDataBits(v *int) int {
	if v != nil && *v >= 5 && *v <= 8 {
		return *v
	}
	return 8
}

func ParseFlowControl(v *string) driver.FlowControl {
	if v == nil {
		return driver.FlowNone
	}
	switch *v {
	case "software":
		return driver.FlowSoftware
	case "hardware":
		return driver.FlowHardware
	default:
		return driver.FlowNone
	}
}

func ParseParity(v *string) driver.Parity {
	if v == nil {
		return driver.ParityNone
	}
	switch *v {
	case "odd":
		return driver.ParityOdd
	case "even":
		return driver.ParityEven
	default:
		return driver.ParityNone
	}
}

func ParseStopBits(v *int) driver.StopBits {
	if v != nil && *v == 2 {
		return driver.StopBitsTwo
	}
	return driver.StopBitsOne
}

// ReadOptions configures one reader. Zero values take the registry defaults.
type ReadOptions struct {
	Interval  time.Duration
	ChunkSize int
}

// Validate rejects a negative interval and chunk sizes above MaxChunkSize.
// Zero values mean "use the default".
func (o ReadOptions) Validate() error {
	if o.Interval < 0 {
		return InvalidInput("interval must not be negative")
	}
	if o.ChunkSize < 0 || o.ChunkSize > MaxChunkSize {
		return InvalidInput("size must be between 1 and %d", MaxChunkSize)
	}
	return nil
}

func (o ReadOptions) withDefaults(d ReadOptions) ReadOptions {
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	return o
}
