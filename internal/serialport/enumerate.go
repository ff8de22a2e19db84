package serialport

import (
	"log/slog"
	"regexp"
	"sort"

	"github.com/kstaniek/go-serialport-server/internal/driver"
	"github.com/kstaniek/go-serialport-server/internal/metrics"
)

// PortInfo describes one port offered to the frontend.
type PortInfo struct {
	PortName     string  `json:"port_name"`
	PortType     string  `json:"port_type"`
	ShowName     string  `json:"show_name"`
	Manufacturer *string `json:"manufacturer"`
	Product      *string `json:"product"`
	VID          string  `json:"vid,omitempty"`
	PID          string  `json:"pid,omitempty"`
	SerialNumber string  `json:"serial_number,omitempty"`
}

// Windows appends the COM name to USB product strings: "Arduino Uno (COM3)".
var comSuffix = regexp.MustCompile(`(?i)\s*\(COM\d+\)\s*$`)

// AvailablePorts lists the ports drv can see, sorted by name. Enumeration
// failures yield an empty list.
func AvailablePorts(drv driver.Driver, l *slog.Logger) []PortInfo {
	details, err := drv.Ports()
	if err != nil {
		metrics.IncError(metrics.ErrEnumerate)
		if l != nil {
			l.Warn("enumerate_failed", "driver", drv.Name(), "error", err)
		}
		return []PortInfo{}
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Name < details[j].Name })
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, portInfo(d))
	}
	return out
}

func portInfo(d driver.PortDetails) PortInfo {
	kind := d.Transport.String()
	pi := PortInfo{PortName: d.Name, PortType: kind}
	tag := kind
	if d.Transport == driver.TransportUSB {
		pi.Manufacturer = optional(d.Manufacturer)
		pi.Product = optional(d.Product)
		pi.VID, pi.PID, pi.SerialNumber = d.VID, d.PID, d.SerialNumber
		if d.Product != "" {
			tag = d.Product
		}
		tag = comSuffix.ReplaceAllString(tag, "")
	}
	pi.ShowName = DisplayName(d.Name, tag)
	return pi
}

// DisplayName renders "name [tag]".
func DisplayName(name, tag string) string { return name + " [" + tag + "]" }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
