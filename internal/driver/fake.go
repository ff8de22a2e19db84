package driver

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrFakeClosed is returned by FakePort after Close.
var ErrFakeClosed = errors.New("fake port closed")

// Fake is an in-memory Driver for tests. Ports are created on Open unless
// OpenErr holds an error for that name.
type Fake struct {
	mu      sync.Mutex
	Details []PortDetails
	ListErr error
	OpenErr map[string]error
	// OpenPanic makes Open panic for the named port.
	OpenPanic string
	ports     map[string]*FakePort
	opens     int
}

var _ Driver = (*Fake)(nil)

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Open(name string, s Settings) (Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenPanic != "" && f.OpenPanic == name {
		panic("fake driver: open " + name)
	}
	if err := f.OpenErr[name]; err != nil {
		return nil, Classify(err)
	}
	if f.ports == nil {
		f.ports = make(map[string]*FakePort)
	}
	p := NewFakePort(s.Timeout)
	p.Settings = s
	f.ports[name] = p
	f.opens++
	return p, nil
}

func (f *Fake) Ports() ([]PortDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]PortDetails(nil), f.Details...), nil
}

// Port returns the most recent port opened under name, or nil.
func (f *Fake) Port(name string) *FakePort {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ports[name]
}

// Opens reports how many successful Open calls were made.
func (f *Fake) Opens() int { f.mu.Lock(); defer f.mu.Unlock(); return f.opens }

type fakeRead struct {
	data []byte
	err  error
}

// FakePort delivers scripted reads. Each Feed/Fail call is consumed by
// exactly one Read; a Read with nothing queued waits up to the timeout and
// returns (0, nil) like go.bug.st/serial does.
type FakePort struct {
	Settings Settings
	timeout  time.Duration
	queue    chan fakeRead
	closed   chan struct{}
	once     sync.Once
	reads    atomic.Int64
	mu       sync.Mutex
	written  []byte
	WriteErr error
}

// NewFakePort returns an unattached fake port. A zero timeout means 10ms.
func NewFakePort(timeout time.Duration) *FakePort {
	if timeout <= 0 {
		timeout = 10 * time.Millisecond
	}
	return &FakePort{timeout: timeout, queue: make(chan fakeRead, 64), closed: make(chan struct{})}
}

// Feed queues one successful read returning b.
func (p *FakePort) Feed(b []byte) { p.queue <- fakeRead{data: append([]byte(nil), b...)} }

// Fail queues one read returning err.
func (p *FakePort) Fail(err error) { p.queue <- fakeRead{err: err} }

func (p *FakePort) Read(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, ErrFakeClosed
	default:
	}
	p.reads.Add(1)
	t := time.NewTimer(p.timeout)
	defer t.Stop()
	select {
	case r := <-p.queue:
		if r.err != nil {
			return 0, r.err
		}
		return copy(b, r.data), nil
	case <-t.C:
		return 0, nil
	case <-p.closed:
		return 0, ErrFakeClosed
	}
}

func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WriteErr != nil {
		return 0, p.WriteErr
	}
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *FakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// Reads reports how many Read calls reached the device.
func (p *FakePort) Reads() int64 { return p.reads.Load() }

// Written returns a copy of everything written so far.
func (p *FakePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

// IsClosed reports whether Close was called.
func (p *FakePort) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}
