package driver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"go.bug.st/serial"
)

// Kind is the coarse classification of a driver failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindNoDevice
	KindInvalidInput
)

// IOKind refines KindIO.
type IOKind int

const (
	IOUnknown IOKind = iota
	IONotFound
	IOPermissionDenied
	IOConnectionRefused
	IOConnectionReset
)

func (k IOKind) String() string {
	switch k {
	case IONotFound:
		return "NotFound"
	case IOPermissionDenied:
		return "PermissionDenied"
	case IOConnectionRefused:
		return "ConnectionRefused"
	case IOConnectionReset:
		return "ConnectionReset"
	default:
		return "Unknown"
	}
}

// Error is the classified form of any error returned by a driver.
type Error struct {
	Kind        Kind
	IO          IOKind // meaningful when Kind == KindIO
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "serial driver error"
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether a reader must stop: the device is gone or access was revoked.
func (e *Error) Fatal() bool {
	return e != nil && e.Kind == KindIO && (e.IO == IONotFound || e.IO == IOPermissionDenied)
}

func invalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Description: fmt.Sprintf(format, args...)}
}

// Classify maps err onto the driver taxonomy. It returns nil for nil and
// passes *Error values through untouched.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	if pe, ok := asPortError(err); ok {
		return classifyPortError(pe, err)
	}
	if k, ok := classifyErrno(err); ok {
		return &Error{Kind: KindIO, IO: k, Description: err.Error(), Err: err}
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Error{Kind: KindIO, IO: IONotFound, Description: err.Error(), Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &Error{Kind: KindIO, IO: IOPermissionDenied, Description: err.Error(), Err: err}
	case errors.Is(err, os.ErrDeadlineExceeded):
		return &Error{Kind: KindIO, IO: IOUnknown, Description: err.Error(), Err: err}
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return &Error{Kind: KindIO, IO: IOUnknown, Description: err.Error(), Err: err}
	}
	return &Error{Kind: KindUnknown, Description: err.Error(), Err: err}
}

// asPortError accepts both the value and pointer forms; go.bug.st/serial returns pointers.
func asPortError(err error) (serial.PortError, bool) {
	var pp *serial.PortError
	if errors.As(err, &pp) && pp != nil {
		return *pp, true
	}
	var pv serial.PortError
	if errors.As(err, &pv) {
		return pv, true
	}
	return serial.PortError{}, false
}

func classifyPortError(pe serial.PortError, err error) *Error {
	out := &Error{Description: pe.Error(), Err: err}
	switch pe.Code() {
	case serial.PortNotFound:
		out.Kind, out.IO = KindIO, IONotFound
	case serial.PortClosed:
		// An unplugged device surfaces as a closed port on Linux.
		out.Kind, out.IO = KindIO, IONotFound
	case serial.PermissionDenied:
		out.Kind, out.IO = KindIO, IOPermissionDenied
	case serial.PortBusy:
		out.Kind, out.IO = KindIO, IOConnectionRefused
	case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity,
		serial.InvalidStopBits, serial.InvalidTimeoutValue:
		out.Kind = KindInvalidInput
	case serial.InvalidSerialPort:
		out.Kind = KindNoDevice
	default:
		// The OS cause is unexported; only its text survives in Error().
		out.Kind = KindUnknown
	}
	return out
}
