//go:build linux

package driver

import (
	"os"
	"path/filepath"
	"strings"
)

var sysClassTTY = "/sys/class/tty"

// lookupSysfs resolves the kernel subsystem of a tty's parent device and,
// walking up at most four levels, the USB manufacturer string.
func lookupSysfs(portName string) (subsystem, manufacturer string) {
	dev := filepath.Join(sysClassTTY, filepath.Base(portName), "device")
	real, err := filepath.EvalSymlinks(dev)
	if err != nil {
		return "", ""
	}
	if link, err := filepath.EvalSymlinks(filepath.Join(real, "subsystem")); err == nil {
		subsystem = filepath.Base(link)
	}
	dir := real
	for i := 0; i < 4 && dir != "/" && dir != "."; i++ {
		if b, err := os.ReadFile(filepath.Join(dir, "manufacturer")); err == nil {
			manufacturer = strings.TrimSpace(string(b))
			break
		}
		dir = filepath.Dir(dir)
	}
	return subsystem, manufacturer
}
