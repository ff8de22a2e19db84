package main

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-serialport-server/internal/driver"
	"github.com/kstaniek/go-serialport-server/internal/hub"
	"github.com/kstaniek/go-serialport-server/internal/serialport"
)

// newDriver is a hook for tests (overridden in unit tests).
var newDriver = driver.New

// initRegistry selects the serial driver and builds the port registry
// feeding h. It returns an error instead of exiting the process.
func initRegistry(cfg *appConfig, h *hub.Hub, l *slog.Logger) (*serialport.Registry, driver.Driver, error) {
	drv, err := newDriver(cfg.driver)
	if err != nil {
		return nil, nil, fmt.Errorf("select driver: %w", err)
	}
	reg := serialport.NewRegistry(drv, h,
		serialport.WithLogger(l),
		serialport.WithReadDefaults(serialport.ReadOptions{Interval: cfg.readInterval, ChunkSize: cfg.readChunkSize}),
		serialport.WithWriteQueue(cfg.writeQueue),
	)
	ports := serialport.AvailablePorts(drv, l)
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.ShowName)
	}
	l.Info("driver_ready", "driver", drv.Name(), "ports", len(ports))
	l.Debug("ports_detected", "ports", names)
	return reg, drv, nil
}
