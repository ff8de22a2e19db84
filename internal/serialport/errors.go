package serialport

import (
	"errors"
	"fmt"

	"github.com/kstaniek/go-serialport-server/internal/driver"
)

// Kind is the error category reported to the frontend.
type Kind string

const (
	KindNoDevice     Kind = "NoDevice"
	KindInvalidInput Kind = "InvalidInput"
	KindUnknown      Kind = "Unknown"
	KindAlreadyOpen  Kind = "AlreadyOpen"
	KindIO           Kind = "IOError"
)

// IOKind refines KindIO.
type IOKind string

const (
	IONotFound          IOKind = "NotFound"
	IOPermissionDenied  IOKind = "PermissionDenied"
	IOConnectionRefused IOKind = "ConnectionRefused"
	IOConnectionReset   IOKind = "ConnectionReset"
	IOUnknown           IOKind = "Unknown"
)

// Error is returned by every registry operation. It serializes directly
// into the error object of a failed response.
type Error struct {
	Kind        Kind   `json:"kind"`
	IO          IOKind `json:"io_kind,omitempty"`
	Description string `json:"description,omitempty"`
}

func (e *Error) Error() string {
	k := string(e.Kind)
	if e.Kind == KindIO {
		k += "(" + string(e.IO) + ")"
	}
	if e.Description == "" {
		return k
	}
	return k + ": " + e.Description
}

// Is matches on Kind, and on IO when the target sets one, so
//
//	errors.Is(err, serialport.ErrNoDevice)
//
// holds for any NoDevice error regardless of its description.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.IO == "" || t.IO == e.IO
}

// Sentinels for errors.Is.
var (
	ErrNoDevice     = &Error{Kind: KindNoDevice}
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrUnknown      = &Error{Kind: KindUnknown}
	ErrAlreadyOpen  = &Error{Kind: KindAlreadyOpen}
	ErrIO           = &Error{Kind: KindIO}
	ErrNotFound     = &Error{Kind: KindIO, IO: IONotFound}
)

func errNoDevice(name string) *Error {
	return &Error{Kind: KindNoDevice, Description: fmt.Sprintf("Port %s not found", name)}
}

func errAlreadyOpen(name string) *Error {
	return &Error{Kind: KindAlreadyOpen, Description: fmt.Sprintf("Port %s already open", name)}
}

var errLockFailed = &Error{Kind: KindUnknown, Description: "Failed to lock ports"}

// InvalidInput builds an InvalidInput error; the dispatcher uses it for bad arguments.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Description: fmt.Sprintf(format, args...)}
}

// FromError converts any error into an *Error, classifying driver failures.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	de := driver.Classify(err)
	out := &Error{Description: de.Error()}
	switch de.Kind {
	case driver.KindIO:
		out.Kind = KindIO
		out.IO = ioKind(de.IO)
	case driver.KindNoDevice:
		out.Kind = KindNoDevice
	case driver.KindInvalidInput:
		out.Kind = KindInvalidInput
	default:
		out.Kind = KindUnknown
	}
	return out
}

func ioKind(k driver.IOKind) IOKind {
	switch k {
	case driver.IONotFound:
		return IONotFound
	case driver.IOPermissionDenied:
		return IOPermissionDenied
	case driver.IOConnectionRefused:
		return IOConnectionRefused
	case driver.IOConnectionReset:
		return IOConnectionReset
	default:
		return IOUnknown
	}
}
