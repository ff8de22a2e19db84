//go:build unix

package driver

import (
	"errors"

	"golang.org/x/sys/unix"
)

// classifyErrno maps OS error numbers; unplugged USB adapters report EIO or ENODEV.
func classifyErrno(err error) (IOKind, bool) {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return IOUnknown, false
	}
	switch errno {
	case unix.ENOENT, unix.ENODEV, unix.ENXIO, unix.EIO:
		return IONotFound, true
	case unix.EACCES, unix.EPERM:
		return IOPermissionDenied, true
	case unix.ECONNREFUSED, unix.EBUSY:
		return IOConnectionRefused, true
	case unix.ECONNRESET, unix.EPIPE:
		return IOConnectionReset, true
	default:
		return IOUnknown, true
	}
}
