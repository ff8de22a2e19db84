//go:build unix

package driver

import (
	"fmt"
	"io/fs"
	"testing"

	"golang.org/x/sys/unix"
)

func TestClassifyErrno(t *testing.T) {
	cases := []struct {
		name string
		err  error
		io   IOKind
	}{
		{"enoent", fmt.Errorf("open: %w", unix.ENOENT), IONotFound},
		{"eio", unix.EIO, IONotFound},
		{"enxio", unix.ENXIO, IONotFound},
		{"eacces", &fs.PathError{Op: "open", Path: "/dev/ttyS0", Err: unix.EACCES}, IOPermissionDenied},
		{"ebusy", unix.EBUSY, IOConnectionRefused},
		{"econnreset", unix.ECONNRESET, IOConnectionReset},
		{"einval", unix.EINVAL, IOUnknown},
	}
	for _, tc := range cases {
		got := Classify(tc.err)
		if got.Kind != KindIO || got.IO != tc.io {
			t.Fatalf("%s: got kind=%v io=%v want io=%v", tc.name, got.Kind, got.IO, tc.io)
		}
	}
}
