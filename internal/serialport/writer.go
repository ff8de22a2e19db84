package serialport

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kstaniek/go-serialport-server/internal/driver"
	"github.com/kstaniek/go-serialport-server/internal/metrics"
	"github.com/kstaniek/go-serialport-server/internal/transport"
)

var errWriteQueueFull = &Error{Kind: KindUnknown, Description: "write queue full"}

// Writer funnels all writes for one port through one goroutine.
type Writer struct{ base *transport.AsyncTx }

func newWriter(parent context.Context, port driver.Port, buf int, l *slog.Logger) *Writer {
	send := func(b []byte) error {
		for len(b) > 0 {
			n, err := port.Write(b)
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.New("short write")
			}
			b = b[n:]
		}
		return nil
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			l.Error("serial_write_error", "error", err)
		},
		OnAfter: metrics.AddTxBytes,
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialTxFull)
			return errWriteQueueFull
		},
	}
	return &Writer{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// Write queues b; it fails with an Unknown error when the queue is full.
func (w *Writer) Write(b []byte) error {
	if err := w.base.Send(b); err != nil {
		if errors.Is(err, transport.ErrAsyncTxClosed) {
			return &Error{Kind: KindUnknown, Description: "port writer closed"}
		}
		return err
	}
	return nil
}

// Close stops the writer goroutine; queued bytes are discarded.
func (w *Writer) Close() { w.base.Close() }
