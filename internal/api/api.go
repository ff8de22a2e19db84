// Package api maps wire requests onto port registry operations.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/kstaniek/go-serialport-server/internal/driver"
	"github.com/kstaniek/go-serialport-server/internal/logging"
	"github.com/kstaniek/go-serialport-server/internal/metrics"
	"github.com/kstaniek/go-serialport-server/internal/serialport"
	"github.com/kstaniek/go-serialport-server/internal/wire"
)

// Command names accepted on the wire.
const (
	CmdAvailablePorts     = "available_ports"
	CmdConnectPort        = "connect_port"
	CmdStartReadPort      = "start_read_port"
	CmdClosePort          = "close_port"
	CmdCloseAllPort       = "close_all_port"
	CmdCloseAllPorts      = "close_all_ports"
	CmdCancelReadPort     = "cancel_read_port"
	CmdWritePort          = "write_port"
	CmdWriteStringPort    = "write_string_port"
	CmdDisconnectAllPorts = "disconnect_all_ports"
	CmdOpenPorts          = "open_ports"
)

type handler func(args json.RawMessage) (any, error)

// Dispatcher executes requests against one registry.
type Dispatcher struct {
	reg      *serialport.Registry
	drv      driver.Driver
	logger   *slog.Logger
	handlers map[string]handler
}

func New(reg *serialport.Registry, drv driver.Driver, l *slog.Logger) *Dispatcher {
	if l == nil {
		l = logging.L()
	}
	d := &Dispatcher{reg: reg, drv: drv, logger: l}
	d.handlers = map[string]handler{
		CmdAvailablePorts:     d.availablePorts,
		CmdConnectPort:        d.connectPort,
		CmdStartReadPort:      d.startReadPort,
		CmdClosePort:          d.closePort,
		CmdCloseAllPort:       d.closeAll,
		CmdCloseAllPorts:      d.closeAll,
		CmdCancelReadPort:     d.cancelReadPort,
		CmdWritePort:          d.writePort,
		CmdWriteStringPort:    d.writeStringPort,
		CmdDisconnectAllPorts: d.disconnectAll,
		CmdOpenPorts:          d.openPorts,
	}
	return d
}

// Handle runs req and always returns a response carrying req.ID.
func (d *Dispatcher) Handle(req wire.Request) wire.Response {
	h, ok := d.handlers[req.Cmd]
	if !ok {
		metrics.IncRequest("unknown")
		return Failure(req.ID, serialport.InvalidInput("unknown command %q", req.Cmd))
	}
	metrics.IncRequest(req.Cmd)
	res, err := h(req.Args)
	if err != nil {
		d.logger.Debug("request_failed", "id", req.ID, "cmd", req.Cmd, "error", err)
		return Failure(req.ID, err)
	}
	return wire.Response{ID: req.ID, OK: true, Result: res}
}

// Failure builds the error response for err.
func Failure(id uint64, err error) wire.Response {
	se := serialport.FromError(err)
	return wire.Response{ID: id, Error: &wire.ErrorBody{
		Kind:        string(se.Kind),
		IOKind:      string(se.IO),
		Description: se.Description,
	}}
}

var errNoArgs = errors.New("no args")

func decodeArgs(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return errNoArgs
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return serialport.InvalidInput("bad args: %v", err)
	}
	return nil
}

type portArgs struct {
	PortName string `json:"port_name"`
}

func (a portArgs) check() error {
	if a.PortName == "" {
		return serialport.InvalidInput("missing port_name")
	}
	return nil
}

// portArg decodes the args of commands that only need a port name.
func portArg(raw json.RawMessage) (string, error) {
	var a portArgs
	if err := decodeArgs(raw, &a); err != nil && !errors.Is(err, errNoArgs) {
		return "", err
	}
	return a.PortName, a.check()
}

func (d *Dispatcher) availablePorts(json.RawMessage) (any, error) {
	return serialport.AvailablePorts(d.drv, d.logger), nil
}

type connectArgs struct {
	portArgs
	serialport.ConnectOptions
}

func (d *Dispatcher) connectPort(raw json.RawMessage) (any, error) {
	var a connectArgs
	if err := decodeArgs(raw, &a); err != nil && !errors.Is(err, errNoArgs) {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return nil, d.reg.Connect(a.PortName, a.ConnectOptions)
}

type startReadArgs struct {
	portArgs
	IntervalMs *uint64 `json:"interval,omitempty"`
	Size       *int    `json:"size,omitempty"`
}

func (d *Dispatcher) startReadPort(raw json.RawMessage) (any, error) {
	var a startReadArgs
	if err := decodeArgs(raw, &a); err != nil && !errors.Is(err, errNoArgs) {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	var opts serialport.ReadOptions
	if a.IntervalMs != nil {
		iv, err := serialport.Millis("interval", *a.IntervalMs)
		if err != nil {
			return nil, err
		}
		opts.Interval = iv
	}
	if a.Size != nil {
		if *a.Size <= 0 || *a.Size > serialport.MaxChunkSize {
			return nil, serialport.InvalidInput("size must be between 1 and %d", serialport.MaxChunkSize)
		}
		opts.ChunkSize = *a.Size
	}
	return nil, d.reg.StartRead(a.PortName, opts)
}

func (d *Dispatcher) closePort(raw json.RawMessage) (any, error) {
	name, err := portArg(raw)
	if err != nil {
		return nil, err
	}
	return nil, d.reg.Close(name)
}

func (d *Dispatcher) closeAll(json.RawMessage) (any, error) {
	return nil, d.reg.CloseAll()
}

func (d *Dispatcher) disconnectAll(json.RawMessage) (any, error) {
	return nil, d.reg.DisconnectAll()
}

func (d *Dispatcher) cancelReadPort(raw json.RawMessage) (any, error) {
	name, err := portArg(raw)
	if err != nil {
		return nil, err
	}
	return nil, d.reg.CancelRead(name)
}

type writeArgs struct {
	portArgs
	Data []byte `json:"data"`
	Text string `json:"text"`
}

func (d *Dispatcher) writePort(raw json.RawMessage) (any, error) {
	var a writeArgs
	if err := decodeArgs(raw, &a); err != nil && !errors.Is(err, errNoArgs) {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return nil, d.reg.Write(a.PortName, a.Data)
}

func (d *Dispatcher) writeStringPort(raw json.RawMessage) (any, error) {
	var a writeArgs
	if err := decodeArgs(raw, &a); err != nil && !errors.Is(err, errNoArgs) {
		return nil, err
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return nil, d.reg.Write(a.PortName, []byte(a.Text))
}

func (d *Dispatcher) openPorts(json.RawMessage) (any, error) {
	return d.reg.OpenPorts(), nil
}
