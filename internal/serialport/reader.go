package serialport

import (
	"context"
	"log/slog"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/driver"
	"github.com/kstaniek/go-serialport-server/internal/event"
	"github.com/kstaniek/go-serialport-server/internal/metrics"
)

// EventSink receives reader output. *hub.Hub is the production sink.
type EventSink interface {
	Emit(name string, payload any)
}

// staleCycles is how many idle cycles an incomplete UTF-8 tail may wait
// before it is force-flushed as raw bytes.
const staleCycles = 2

// sleepCtx waits for d or until ctx is done; it reports false on cancellation.
// Tests may replace it.
var sleepCtx = func(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type readerHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *readerHandle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// reader polls one port and turns bytes into events.
type reader struct {
	name string
	port driver.Port
	sink EventSink
	opts ReadOptions
	log  *slog.Logger

	readEv, stringEv, disconnectEv string
}

func newReader(name string, port driver.Port, sink EventSink, opts ReadOptions, l *slog.Logger) *reader {
	return &reader{
		name:         name,
		port:         port,
		sink:         sink,
		opts:         opts,
		log:          l,
		readEv:       event.ReadName(name),
		stringEv:     event.ReadStringName(name),
		disconnectEv: event.DisconnectName(name),
	}
}

func (r *reader) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	metrics.IncReaders()
	defer metrics.DecReaders()
	r.log.Info("reader_start", "interval", r.opts.Interval, "chunk_size", r.opts.ChunkSize)
	defer r.log.Info("reader_exit")

	buf := make([]byte, r.opts.ChunkSize)
	var asm Reassembler
	stale := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := r.port.Read(buf)
		if n > 0 {
			metrics.AddRxBytes(n)
			data := append([]byte(nil), buf[:n]...)
			r.emit(metrics.EventRead, r.readEv, event.ReadData{Size: n, Data: data})
			if text := asm.Feed(data); len(text) > 0 {
				r.emit(metrics.EventReadString, r.stringEv, event.ReadData{Size: len(text), Data: text})
			}
			stale = 0
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			de := driver.Classify(err)
			if de.Fatal() {
				metrics.IncDisconnect()
				r.log.Warn("port_disconnected", "io_kind", de.IO.String(), "error", de)
				r.emit(metrics.EventDisconnect, r.disconnectEv, event.Disconnect{})
				return
			}
			metrics.IncError(metrics.ErrSerialRead)
			r.log.Debug("serial_read_error", "error", err)
		}

		if !sleepCtx(ctx, r.opts.Interval) {
			return
		}
		if asm.Pending() > 0 {
			if stale > staleCycles {
				tail := asm.Flush()
				metrics.IncForcedFlush()
				r.log.Debug("utf8_forced_flush", "bytes", len(tail))
				r.emit(metrics.EventRead, r.readEv, event.ReadData{Size: len(tail), Data: tail, Flushed: true})
				stale = 0
			} else {
				stale++
			}
		}
	}
}

func (r *reader) emit(kind, name string, payload any) {
	metrics.IncEvent(kind)
	r.sink.Emit(name, payload)
}
