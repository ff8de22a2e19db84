package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/api"
	"github.com/kstaniek/go-serialport-server/internal/driver"
	"github.com/kstaniek/go-serialport-server/internal/event"
	"github.com/kstaniek/go-serialport-server/internal/hub"
	"github.com/kstaniek/go-serialport-server/internal/logging"
	"github.com/kstaniek/go-serialport-server/internal/metrics"
	"github.com/kstaniek/go-serialport-server/internal/serialport"
	"github.com/kstaniek/go-serialport-server/internal/wire"
)

// echoHandler answers every request with its command name.
var echoHandler = HandlerFunc(func(r wire.Request) wire.Response {
	return wire.Response{ID: r.ID, OK: true, Result: r.Cmd}
})

type testClient struct {
	conn net.Conn
	dec  *wire.Decoder
	enc  wire.Codec
}

func dialAndHandshake(t *testing.T, ctx context.Context, addr string) *testClient {
	t.Helper()
	d := net.Dialer{Timeout: 1 * time.Second}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := wire.Handshake(ctx, c, time.Second); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	return &testClient{conn: c, dec: wire.NewDecoder(c)}
}

func (c *testClient) Close() error { return c.conn.Close() }

func (c *testClient) send(t *testing.T, req wire.Request) {
	t.Helper()
	if _, err := c.enc.EncodeTo(c.conn, []any{req}); err != nil {
		t.Fatalf("send: %v", err)
	}
}

// next returns the next message, skipping events unless wantEvent is set.
func (c *testClient) next(t *testing.T, wantEvent bool) wire.Message {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		m, err := c.dec.DecodeMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if m.IsEvent() == wantEvent {
			return m
		}
	}
}

func startServer(t *testing.T, ctx context.Context, opts ...ServerOption) (*Server, *hub.Hub) {
	t.Helper()
	h := hub.New()
	opts = append([]ServerOption{WithHub(h), WithHandler(echoHandler), WithLogger(logging.Discard())}, opts...)
	srv := NewServer(opts...)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			t.Logf("Serve returned: %v", err)
		}
	}()
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatalf("server did not signal readiness")
	}
	return srv, h
}

func waitClients(t *testing.T, h *hub.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.Count() == n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, have %d", n, h.Count())
}

func TestSmokeRequestResponse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, _ := startServer(t, ctx)
	c := dialAndHandshake(t, ctx, srv.Addr())
	defer c.Close()

	c.send(t, wire.Request{ID: 42, Cmd: "open_ports"})
	m := c.next(t, false)
	var cmd string
	if err := json.Unmarshal(m.Result, &cmd); err != nil || m.ID != 42 || !m.OK || cmd != "open_ports" {
		t.Fatalf("response %+v (%v)", m, err)
	}
}

func TestSmokeMalformedKeepsConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, _ := startServer(t, ctx)
	c := dialAndHandshake(t, ctx, srv.Addr())
	defer c.Close()
	pre := metrics.Snap()

	if _, err := io.WriteString(c.conn, "{nope\n"); err != nil {
		t.Fatal(err)
	}
	m := c.next(t, false)
	if m.ID != 0 || m.OK || m.Error == nil || m.Error.Kind != "InvalidInput" {
		t.Fatalf("malformed response %+v", m)
	}
	if post := metrics.Snap(); post.Malformed <= pre.Malformed {
		t.Fatalf("malformed counter not incremented")
	}
	c.send(t, wire.Request{ID: 2, Cmd: "available_ports"})
	if m := c.next(t, false); m.ID != 2 || !m.OK {
		t.Fatalf("connection unusable after malformed line: %+v", m)
	}
}

func TestSmokeEventBroadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, h := startServer(t, ctx)
	const nClients = 3
	clients := make([]*testClient, 0, nClients)
	for i := 0; i < nClients; i++ {
		clients = append(clients, dialAndHandshake(t, ctx, srv.Addr()))
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()
	waitClients(t, h, nClients)
	h.Emit(event.DisconnectName("COM1"), event.Disconnect{})
	for i, c := range clients {
		m := c.next(t, true)
		if m.Event != "plugin:serialport:disconnect-COM1" || string(m.Payload) != "{}" {
			t.Fatalf("client %d got %+v", i, m)
		}
	}
}

func TestSmokeHandshakeFailureCounted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, h := startServer(t, ctx, WithHandshakeTimeout(50*time.Millisecond))
	pre := metrics.Snap()
	raw, err := net.DialTimeout("tcp", srv.Addr(), 500*time.Millisecond)
	if err != nil {
		t.Fatalf("dial raw: %v", err)
	}
	_, _ = io.WriteString(raw, "GET / HTTP/1.1\r\n")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !errors.Is(srv.LastError(), ErrHandshake) {
		time.Sleep(3 * time.Millisecond)
	}
	_ = raw.Close()
	if metrics.Snap().Errors <= pre.Errors {
		t.Fatal("expected handshake error counted")
	}
	if !errors.Is(srv.LastError(), ErrHandshake) {
		t.Fatalf("last error %v", srv.LastError())
	}
	if h.Count() != 0 {
		t.Fatal("failed handshake registered a client")
	}
}

func TestMaxClients(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, h := startServer(t, ctx, WithMaxClients(1))
	c1 := dialAndHandshake(t, ctx, srv.Addr())
	defer c1.Close()
	waitClients(t, h, 1)
	c2 := dialAndHandshake(t, ctx, srv.Addr())
	defer c2.Close()
	_ = c2.conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := c2.conn.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected rejected client to be closed")
	}
	if h.Count() != 1 {
		t.Fatalf("clients=%d", h.Count())
	}
}

func TestGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	srv, h := startServer(t, ctx)
	c1 := dialAndHandshake(t, ctx, srv.Addr())
	c2 := dialAndHandshake(t, ctx, srv.Addr())
	waitClients(t, h, 2)
	sdCtx, sdCancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer sdCancel()
	if err := srv.Shutdown(sdCtx); err != nil {
		t.Fatalf("shutdown err: %v", err)
	}
	for i, c := range []*testClient{c1, c2} {
		_ = c.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		if _, err := c.conn.Read(make([]byte, 8)); err == nil {
			t.Fatalf("expected c%d read to fail after shutdown", i+1)
		}
	}
	waitClients(t, h, 0)
}

// TestSmokeSerialStream drives the full stack: dispatcher, registry, fake
// device, hub and TCP.
func TestSmokeSerialStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h := hub.New()
	fake := &driver.Fake{}
	reg := serialport.NewRegistry(fake, h, serialport.WithLogger(logging.Discard()))
	defer reg.Shutdown(context.Background())
	d := api.New(reg, fake, logging.Discard())
	srv, _ := startServer(t, ctx, WithHub(h), WithHandler(d))
	c := dialAndHandshake(t, ctx, srv.Addr())
	defer c.Close()
	waitClients(t, h, 1)

	c.send(t, wire.Request{ID: 1, Cmd: api.CmdConnectPort, Args: json.RawMessage(`{"port_name":"COM3","timeout":5}`)})
	if m := c.next(t, false); !m.OK {
		t.Fatalf("connect failed: %+v", m.Error)
	}
	c.send(t, wire.Request{ID: 2, Cmd: api.CmdStartReadPort, Args: json.RawMessage(`{"port_name":"COM3","interval":1}`)})
	if m := c.next(t, false); !m.OK {
		t.Fatalf("start read failed: %+v", m.Error)
	}
	fake.Port("COM3").Feed([]byte("hi\n"))

	var raw, text bool
	for !(raw && text) {
		m := c.next(t, true)
		var p struct {
			Size int    `json:"size"`
			Data []byte `json:"data"`
		}
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			t.Fatal(err)
		}
		switch m.Event {
		case "plugin:serialport:read-COM3":
			raw = p.Size == 3 && string(p.Data) == "hi\n"
		case "plugin:serialport:read-string-COM3":
			text = strings.TrimSpace(string(p.Data)) == "hi"
		}
	}

	c.send(t, wire.Request{ID: 3, Cmd: api.CmdClosePort, Args: json.RawMessage(`{"port_name":"COM9"}`)})
	m := c.next(t, false)
	if m.ID != 3 || m.OK || m.Error.Kind != "NoDevice" || m.Error.Description != "Port COM9 not found" {
		t.Fatalf("close missing: %+v", m.Error)
	}
}

func TestServeRequiresHandler(t *testing.T) {
	srv := NewServer(WithHub(hub.New()), WithLogger(logging.Discard()))
	if err := srv.Serve(context.Background()); !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestMapErrToMetric(t *testing.T) {
	cases := map[error]string{
		fmt.Errorf("%w: x", ErrConnRead):    metrics.ErrTCPRead,
		fmt.Errorf("%w: x", ErrConnWrite):   metrics.ErrTCPWrite,
		fmt.Errorf("%w: x", ErrHandshake):   metrics.ErrHandshake,
		fmt.Errorf("%w: x", ErrClientLimit): metrics.ErrClientLimit,
		errors.New("boom"):                  "other",
	}
	for err, want := range cases {
		if got := mapErrToMetric(err); got != want {
			t.Fatalf("%v: got %q want %q", err, got, want)
		}
	}
}
