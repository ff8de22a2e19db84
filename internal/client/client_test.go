package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/api"
	"github.com/kstaniek/go-serialport-server/internal/driver"
	"github.com/kstaniek/go-serialport-server/internal/event"
	"github.com/kstaniek/go-serialport-server/internal/hub"
	"github.com/kstaniek/go-serialport-server/internal/logging"
	"github.com/kstaniek/go-serialport-server/internal/serialport"
	"github.com/kstaniek/go-serialport-server/internal/server"
	"github.com/kstaniek/go-serialport-server/internal/wire"
)

func startStack(t *testing.T) (*Client, *driver.Fake) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.New()
	fake := &driver.Fake{Details: []driver.PortDetails{
		{Name: "/dev/ttyACM0", Transport: driver.TransportUSB, Product: "Arduino Uno"},
	}}
	reg := serialport.NewRegistry(fake, h, serialport.WithLogger(logging.Discard()),
		serialport.WithReadDefaults(serialport.ReadOptions{Interval: time.Millisecond}))
	srv := server.NewServer(server.WithHub(h), server.WithHandler(api.New(reg, fake, logging.Discard())),
		server.WithLogger(logging.Discard()))
	go func() { _ = srv.Serve(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server not ready")
	}
	c, err := Dial(ctx, srv.Addr(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		sd, sdCancel := context.WithTimeout(context.Background(), time.Second)
		defer sdCancel()
		_ = srv.Shutdown(sd)
		_ = reg.Shutdown(sd)
		cancel()
	})
	return c, fake
}

func TestClientOperations(t *testing.T) {
	c, fake := startStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ports, err := c.AvailablePorts(ctx)
	if err != nil || len(ports) != 1 || ports[0].ShowName != "/dev/ttyACM0 [Arduino Uno]" {
		t.Fatalf("ports=%+v err=%v", ports, err)
	}
	baud := 57600
	if err := c.Connect(ctx, "/dev/ttyACM0", serialport.ConnectOptions{BaudRate: &baud}); err != nil {
		t.Fatal(err)
	}
	if got := fake.Port("/dev/ttyACM0").Settings.BaudRate; got != 57600 {
		t.Fatalf("baud=%d", got)
	}
	err = c.Connect(ctx, "/dev/ttyACM0", serialport.ConnectOptions{})
	var eb *wire.ErrorBody
	if !errors.As(err, &eb) || eb.Kind != "AlreadyOpen" {
		t.Fatalf("expected AlreadyOpen, got %v", err)
	}
	if err := c.WriteString(ctx, "/dev/ttyACM0", "ping"); err != nil {
		t.Fatal(err)
	}
	if err := c.Write(ctx, "/dev/ttyACM0", []byte{0}); err != nil {
		t.Fatal(err)
	}
	names, err := c.OpenPorts(ctx)
	if err != nil || len(names) != 1 {
		t.Fatalf("open=%v err=%v", names, err)
	}
	if err := c.StartRead(ctx, "/dev/ttyACM0", 0, 0); err != nil {
		t.Fatal(err)
	}
	fake.Port("/dev/ttyACM0").Feed([]byte("pong"))
	waitEvent(t, ctx, c, event.ReadStringName("/dev/ttyACM0"))
	if err := c.CancelRead(ctx, "/dev/ttyACM0"); err != nil {
		t.Fatal(err)
	}
	if err := c.CloseAll(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.ClosePort(ctx, "/dev/ttyACM0"); err != nil {
		t.Fatal(err)
	}
	if err := c.DisconnectAll(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.ClosePort(ctx, "/dev/ttyACM0"); !errors.As(err, &eb) || eb.Kind != "NoDevice" {
		t.Fatalf("expected NoDevice, got %v", err)
	}
}

func TestClientClosedConnection(t *testing.T) {
	c, _ := startStack(t)
	_ = c.Close()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop did not stop")
	}
	if err := c.CloseAll(context.Background()); err == nil {
		t.Fatal("expected error on closed client")
	}
}

func waitEvent(t *testing.T, ctx context.Context, c *Client, name string) wire.Message {
	t.Helper()
	for {
		select {
		case m, ok := <-c.Events():
			if !ok {
				t.Fatal("events closed")
			}
			if m.Event == name {
				return m
			}
		case <-ctx.Done():
			t.Fatalf("no %s event", name)
		}
	}
}
