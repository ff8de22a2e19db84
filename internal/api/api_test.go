package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/driver"
	"github.com/kstaniek/go-serialport-server/internal/logging"
	"github.com/kstaniek/go-serialport-server/internal/serialport"
	"github.com/kstaniek/go-serialport-server/internal/wire"
)

type nopSink struct{}

func (nopSink) Emit(string, any) {}

func newDispatcher(t *testing.T) (*Dispatcher, *driver.Fake, *serialport.Registry) {
	t.Helper()
	fake := &driver.Fake{Details: []driver.PortDetails{
		{Name: "COM3", Transport: driver.TransportUSB, Product: "Arduino Uno (COM3)"},
	}}
	reg := serialport.NewRegistry(fake, nopSink{}, serialport.WithLogger(logging.Discard()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})
	return New(reg, fake, logging.Discard()), fake, reg
}

func call(d *Dispatcher, id uint64, cmd, args string) wire.Response {
	req := wire.Request{ID: id, Cmd: cmd}
	if args != "" {
		req.Args = json.RawMessage(args)
	}
	return d.Handle(req)
}

func expectOK(t *testing.T, r wire.Response) {
	t.Helper()
	if !r.OK || r.Error != nil {
		t.Fatalf("expected ok, got %+v", r.Error)
	}
}

func expectKind(t *testing.T, r wire.Response, kind string) {
	t.Helper()
	if r.OK || r.Error == nil || r.Error.Kind != kind {
		t.Fatalf("expected %s, got ok=%v err=%+v", kind, r.OK, r.Error)
	}
}

func TestConnectDefaultsAndParsing(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	expectOK(t, call(d, 1, CmdConnectPort, `{"port_name":"COM3"}`))
	if s := fake.Port("COM3").Settings; s != driver.DefaultSettings() {
		t.Fatalf("defaults not applied: %s", s)
	}
	expectOK(t, call(d, 2, CmdConnectPort,
		`{"port_name":"COM4","baud_rate":9600,"data_bits":4,"parity":"odd","stop_bits":2,"flow_control":"bogus","timeout":50}`))
	s := fake.Port("COM4").Settings
	want := driver.Settings{BaudRate: 9600, DataBits: 8, Parity: driver.ParityOdd, StopBits: driver.StopBitsTwo,
		FlowControl: driver.FlowNone, Timeout: 50 * time.Millisecond}
	if s != want {
		t.Fatalf("got %+v want %+v", s, want)
	}
	r := call(d, 3, CmdConnectPort, `{"port_name":"COM3"}`)
	expectKind(t, r, "AlreadyOpen")
	if r.ID != 3 {
		t.Fatalf("response id %d", r.ID)
	}
}

func TestArgumentErrors(t *testing.T) {
	d, _, _ := newDispatcher(t)
	expectKind(t, call(d, 1, CmdConnectPort, ""), "InvalidInput")
	expectKind(t, call(d, 2, CmdClosePort, `{}`), "InvalidInput")
	expectKind(t, call(d, 3, CmdConnectPort, `{"port_name":5}`), "InvalidInput")
	expectKind(t, call(d, 4, "reboot", `{}`), "InvalidInput")
	expectKind(t, call(d, 5, CmdClosePort, `{"port_name":"COM1"}`), "NoDevice")
}

func TestOpenIOErrorKinds(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	fake.OpenErr = map[string]error{"COM8": &driver.Error{Kind: driver.KindIO, IO: driver.IOPermissionDenied, Description: "denied"}}
	r := call(d, 1, CmdConnectPort, `{"port_name":"COM8"}`)
	expectKind(t, r, "IOError")
	if r.Error.IOKind != "PermissionDenied" || r.Error.Description != "denied" {
		t.Fatalf("error body %+v", r.Error)
	}
}

func TestAvailablePorts(t *testing.T) {
	d, _, _ := newDispatcher(t)
	r := call(d, 1, CmdAvailablePorts, "")
	expectOK(t, r)
	ports, ok := r.Result.([]serialport.PortInfo)
	if !ok || len(ports) != 1 || ports[0].ShowName != "COM3 [Arduino Uno]" {
		t.Fatalf("result %#v", r.Result)
	}
}

func TestLifecycleCommands(t *testing.T) {
	d, fake, reg := newDispatcher(t)
	expectOK(t, call(d, 1, CmdConnectPort, `{"port_name":"COM3","timeout":5}`))
	expectOK(t, call(d, 2, CmdStartReadPort, `{"port_name":"COM3","interval":1,"size":16}`))
	if !reg.Reading("COM3") {
		t.Fatal("reader not started")
	}
	expectKind(t, call(d, 3, CmdStartReadPort, `{"port_name":"COM3","size":0}`), "InvalidInput")
	expectOK(t, call(d, 4, CmdWriteStringPort, `{"port_name":"COM3","text":"AT\r\n"}`))
	expectOK(t, call(d, 5, CmdWritePort, `{"port_name":"COM3","data":"AQI="}`))
	p := fake.Port("COM3")
	deadline := time.Now().Add(2 * time.Second)
	for string(p.Written()) != "AT\r\n\x01\x02" && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if got := p.Written(); string(got) != "AT\r\n\x01\x02" {
		t.Fatalf("written %q", got)
	}
	expectOK(t, call(d, 6, CmdCloseAllPorts, ""))
	r := call(d, 7, CmdOpenPorts, "")
	expectOK(t, r)
	if names := r.Result.([]string); len(names) != 1 || names[0] != "COM3" {
		t.Fatalf("open ports %v", names)
	}
	expectOK(t, call(d, 8, CmdCancelReadPort, `{"port_name":"COM3"}`))
	expectOK(t, call(d, 9, CmdDisconnectAllPorts, ""))
	if !p.IsClosed() || len(reg.OpenPorts()) != 0 {
		t.Fatal("disconnect_all_ports left the port open")
	}
}

func TestFailureBody(t *testing.T) {
	r := Failure(0, serialport.InvalidInput("bad line"))
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"id":0,"ok":false,"error":{"kind":"InvalidInput","description":"bad line"}}` {
		t.Fatalf("got %s", b)
	}
}

func TestReadAndConnectBounds(t *testing.T) {
	d, fake, reg := newDispatcher(t)
	expectOK(t, call(d, 1, CmdConnectPort, `{"port_name":"COM3","timeout":5}`))
	for i, args := range []string{
		`{"port_name":"COM3","size":4611686018427387904}`,
		`{"port_name":"COM3","size":1048577}`,
		`{"port_name":"COM3","size":0}`,
		`{"port_name":"COM3","interval":18446744073709551615}`,
	} {
		expectKind(t, call(d, uint64(10+i), CmdStartReadPort, args), "InvalidInput")
	}
	if reg.Reading("COM3") {
		t.Fatal("reader started with rejected options")
	}
	expectOK(t, call(d, 20, CmdStartReadPort, `{"port_name":"COM3","interval":1,"size":1048576}`))
	fake.Port("COM3").Feed([]byte("ok"))

	expectKind(t, call(d, 21, CmdConnectPort, `{"port_name":"COM4","timeout":18446744073709551615}`), "InvalidInput")
	if fake.Port("COM4") != nil {
		t.Fatal("device opened with an overflowing timeout")
	}
}
