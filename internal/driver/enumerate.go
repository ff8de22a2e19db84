package driver

import (
	"regexp"

	"go.bug.st/serial/enumerator"
)

var bluetoothName = regexp.MustCompile(`(?i)rfcomm|bluetooth|\bbth`)

// listPorts enumerates through go.bug.st/serial/enumerator and classifies each port.
func listPorts() ([]PortDetails, error) {
	list, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, Classify(err)
	}
	out := make([]PortDetails, 0, len(list))
	for _, p := range list {
		if p == nil {
			continue
		}
		out = append(out, detailsFrom(p, lookupSysfs))
	}
	return out, nil
}

// detailsFrom converts enumerator output. sysfs supplies the kernel
// subsystem and USB manufacturer where the platform exposes them.
func detailsFrom(p *enumerator.PortDetails, sysfs func(string) (string, string)) PortDetails {
	d := PortDetails{Name: p.Name}
	subsystem, manufacturer := sysfs(p.Name)
	switch {
	case p.IsUSB:
		d.Transport = TransportUSB
		d.Product = p.Product
		d.VID = p.VID
		d.PID = p.PID
		d.SerialNumber = p.SerialNumber
		d.Manufacturer = manufacturer
	case bluetoothName.MatchString(p.Name):
		d.Transport = TransportBluetooth
	case subsystem == "pci":
		d.Transport = TransportPCI
	default:
		d.Transport = TransportUnknown
	}
	return d
}
