// Package client speaks the frontend protocol to a serialport-server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/serialport"
	"github.com/kstaniek/go-serialport-server/internal/wire"
)

// ErrClosed is returned by calls after the connection has gone away.
var ErrClosed = errors.New("client closed")

// Client multiplexes requests over one connection and surfaces pushed events.
type Client struct {
	conn  net.Conn
	codec wire.Codec

	wmu     sync.Mutex
	mu      sync.Mutex
	pending map[uint64]chan wire.Message
	nextID  atomic.Uint64

	events  chan wire.Message
	dropped atomic.Uint64
	done    chan struct{}
	err     error
}

// Dial connects to addr and performs the hello exchange.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := wire.Handshake(ctx, conn, timeout); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return New(conn), nil
}

// New wraps an already handshaken connection.
func New(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan wire.Message),
		events:  make(chan wire.Message, 256),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	dec := wire.NewDecoder(c.conn)
	var err error
	for {
		var m wire.Message
		m, err = dec.DecodeMessage()
		if err != nil {
			if errors.Is(err, wire.ErrMalformed) {
				continue
			}
			break
		}
		if m.IsEvent() {
			select {
			case c.events <- m:
			default:
				c.dropped.Add(1)
			}
			continue
		}
		c.mu.Lock()
		ch := c.pending[m.ID]
		delete(c.pending, m.ID)
		c.mu.Unlock()
		if ch != nil {
			ch <- m
		}
	}
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.done)
	close(c.events)
}

// Events delivers pushed events. It is closed when the connection ends;
// events are dropped while the buffer is full.
func (c *Client) Events() <-chan wire.Message { return c.events }

// Dropped reports how many events were discarded for lack of a reader.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

// Done is closed when the connection ends; Err then reports why.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Err() error { c.mu.Lock(); defer c.mu.Unlock(); return c.err }

func (c *Client) Close() error { return c.conn.Close() }

// Call sends cmd with args and decodes a successful result into result
// (which may be nil). A failed response is returned as *wire.ErrorBody.
func (c *Client) Call(ctx context.Context, cmd string, args any, result any) error {
	req := wire.Request{ID: c.nextID.Add(1), Cmd: cmd}
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("encode args: %w", err)
		}
		req.Args = b
	}
	ch := make(chan wire.Message, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.wmu.Lock()
	_, err := c.codec.EncodeTo(c.conn, []any{req})
	c.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	select {
	case m := <-ch:
		if !m.OK {
			if m.Error == nil {
				return &wire.ErrorBody{Kind: string(serialport.KindUnknown)}
			}
			return m.Error
		}
		if result != nil && len(m.Result) > 0 {
			if err := json.Unmarshal(m.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", cmd, err)
			}
		}
		return nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
