// Package serialport tracks open serial ports by name and streams their
// input to an EventSink through one reader goroutine per port.
package serialport

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/kstaniek/go-serialport-server/internal/driver"
	"github.com/kstaniek/go-serialport-server/internal/logging"
	"github.com/kstaniek/go-serialport-server/internal/metrics"
)

const defaultWriteQueue = 64

type entry struct {
	port   driver.Port
	reader *readerHandle // nil until the first StartRead
	writer *Writer
}

// Registry owns every open port. A name present in the map exclusively
// owns its device handle. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	ports    map[string]*entry
	poisoned bool

	drv        driver.Driver
	sink       EventSink
	readOpts   ReadOptions
	writeQueue int
	logger     *slog.Logger

	base   context.Context
	stop   context.CancelFunc
	active sync.WaitGroup // reader goroutines
}

type Option func(*Registry)

// WithReadDefaults sets the interval and chunk size used when StartRead omits them.
func WithReadDefaults(o ReadOptions) Option {
	return func(r *Registry) { r.readOpts = o.withDefaults(r.readOpts) }
}

func WithWriteQueue(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.writeQueue = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry builds an empty registry opening ports through drv and
// emitting reader output to sink.
func NewRegistry(drv driver.Driver, sink EventSink, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		ports:      make(map[string]*entry),
		drv:        drv,
		sink:       sink,
		readOpts:   ReadOptions{Interval: DefaultInterval, ChunkSize: DefaultChunkSize},
		writeQueue: defaultWriteQueue,
		logger:     logging.L(),
		base:       ctx,
		stop:       cancel,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// locked runs fn under the registry mutex. A panic inside fn poisons the
// registry: the call and every later call fail with "Failed to lock ports".
func (r *Registry) locked(fn func() error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poisoned {
		return errLockFailed
	}
	defer func() {
		if p := recover(); p != nil {
			r.poisoned = true
			r.logger.Error("registry_poisoned", "panic", p)
			err = errLockFailed
		}
	}()
	return fn()
}

// Connect opens name and registers it. Nothing is registered on failure.
func (r *Registry) Connect(name string, opts ConnectOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	s := opts.Settings()
	l := logging.ForPort(r.logger, name)
	return r.locked(func() error {
		if _, ok := r.ports[name]; ok {
			return errAlreadyOpen(name)
		}
		p, err := r.drv.Open(name, s)
		if err != nil {
			metrics.IncError(metrics.ErrSerialOpen)
			e := FromError(err)
			l.Warn("port_open_failed", "settings", s.String(), "error", e)
			return e
		}
		r.ports[name] = &entry{port: p, writer: newWriter(r.base, p, r.writeQueue, l)}
		metrics.SetPortsOpen(len(r.ports))
		l.Info("port_open", "driver", r.drv.Name(), "settings", s.String())
		return nil
	})
}

// Close stops the port's reader, closes the device and forgets the port.
// The device is closed after the lock is released, so a Connect racing
// this call may briefly see the handle as busy.
func (r *Registry) Close(name string) error {
	var e *entry
	err := r.locked(func() error {
		var ok bool
		if e, ok = r.ports[name]; !ok {
			return errNoDevice(name)
		}
		delete(r.ports, name)
		metrics.SetPortsOpen(len(r.ports))
		return nil
	})
	if err != nil {
		return err
	}
	r.release(name, e)
	return nil
}

// release tears an entry down outside the lock. The reader is cancelled
// first so a read failing on the closed handle exits silently.
func (r *Registry) release(name string, e *entry) {
	if e.reader != nil {
		e.reader.cancel()
	}
	e.writer.Close()
	if err := e.port.Close(); err != nil {
		metrics.IncError(metrics.ErrSerialClose)
		logging.ForPort(r.logger, name).Warn("port_close_error", "error", err)
	}
	logging.ForPort(r.logger, name).Info("port_closed")
}

// CloseAll cancels every running reader. Ports stay open and registered.
func (r *Registry) CloseAll() error {
	return r.locked(func() error {
		n := 0
		for _, e := range r.ports {
			if e.reader != nil {
				e.reader.cancel()
				n++
			}
		}
		r.logger.Info("readers_cancelled", "count", n)
		return nil
	})
}

// DisconnectAll closes every registered port as Close would.
func (r *Registry) DisconnectAll() error {
	var drained map[string]*entry
	err := r.locked(func() error {
		drained = r.ports
		r.ports = make(map[string]*entry)
		metrics.SetPortsOpen(0)
		return nil
	})
	if err != nil {
		return err
	}
	for name, e := range drained {
		r.release(name, e)
	}
	return nil
}

// CancelRead stops the port's reader if one is running.
func (r *Registry) CancelRead(name string) error {
	return r.locked(func() error {
		e, ok := r.ports[name]
		if !ok {
			return errNoDevice(name)
		}
		if e.reader != nil {
			e.reader.cancel()
		}
		return nil
	})
}

// StartRead spawns the port's reader. It is a no-op while a reader is
// still running; once the previous reader has exited a new one is started.
func (r *Registry) StartRead(name string, opts ReadOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	opts = opts.withDefaults(r.readOpts)
	return r.locked(func() error {
		e, ok := r.ports[name]
		if !ok {
			return errNoDevice(name)
		}
		if e.reader != nil && e.reader.alive() {
			return nil
		}
		if e.reader != nil {
			e.reader.cancel()
		}
		ctx, cancel := context.WithCancel(r.base)
		h := &readerHandle{ctx: ctx, cancel: cancel, done: make(chan struct{})}
		e.reader = h
		rd := newReader(name, e.port, r.sink, opts, logging.ForPort(r.logger, name))
		r.active.Add(1)
		go func() {
			defer r.active.Done()
			// An exited reader must not keep its context registered on r.base.
			defer cancel()
			rd.run(ctx, h.done)
		}()
		return nil
	})
}

// Write queues data for the port's writer.
func (r *Registry) Write(name string, data []byte) error {
	return r.locked(func() error {
		e, ok := r.ports[name]
		if !ok {
			return errNoDevice(name)
		}
		return e.writer.Write(data)
	})
}

// Reading reports whether name has a live reader.
func (r *Registry) Reading(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.ports[name]
	return ok && e.reader != nil && e.reader.alive()
}

// OpenPorts returns the registered names in sorted order.
func (r *Registry) OpenPorts() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.ports))
	for n := range r.ports {
		names = append(names, n)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}

// Shutdown closes every port and waits for all readers to exit or ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	err := r.DisconnectAll()
	r.stop()
	done := make(chan struct{})
	go func() {
		r.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
