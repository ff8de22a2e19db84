package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"ports_open", snap.PortsOpen,
					"readers", snap.Readers,
					"serial_rx_bytes", snap.RxBytes,
					"serial_tx_bytes", snap.TxBytes,
					"events", snap.Events,
					"forced_flushes", snap.Flushes,
					"disconnects", snap.Disconnects,
					"requests", snap.Requests,
					"clients", snap.HubClients,
					"hub_drops", snap.HubDrops,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
