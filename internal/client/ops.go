package client

import (
	"context"

	"github.com/kstaniek/go-serialport-server/internal/api"
	"github.com/kstaniek/go-serialport-server/internal/serialport"
)

type portArgs struct {
	PortName string `json:"port_name"`
}

func (c *Client) AvailablePorts(ctx context.Context) ([]serialport.PortInfo, error) {
	var out []serialport.PortInfo
	err := c.Call(ctx, api.CmdAvailablePorts, nil, &out)
	return out, err
}

func (c *Client) Connect(ctx context.Context, name string, opts serialport.ConnectOptions) error {
	args := struct {
		portArgs
		serialport.ConnectOptions
	}{portArgs{name}, opts}
	return c.Call(ctx, api.CmdConnectPort, args, nil)
}

// StartRead starts streaming; zero intervalMs or size use the server defaults.
func (c *Client) StartRead(ctx context.Context, name string, intervalMs uint64, size int) error {
	args := struct {
		portArgs
		Interval uint64 `json:"interval,omitempty"`
		Size     int    `json:"size,omitempty"`
	}{portArgs{name}, intervalMs, size}
	return c.Call(ctx, api.CmdStartReadPort, args, nil)
}

func (c *Client) ClosePort(ctx context.Context, name string) error {
	return c.Call(ctx, api.CmdClosePort, portArgs{name}, nil)
}

func (c *Client) CloseAll(ctx context.Context) error {
	return c.Call(ctx, api.CmdCloseAllPort, nil, nil)
}

func (c *Client) CancelRead(ctx context.Context, name string) error {
	return c.Call(ctx, api.CmdCancelReadPort, portArgs{name}, nil)
}

func (c *Client) Write(ctx context.Context, name string, data []byte) error {
	args := struct {
		portArgs
		Data []byte `json:"data"`
	}{portArgs{name}, data}
	return c.Call(ctx, api.CmdWritePort, args, nil)
}

func (c *Client) WriteString(ctx context.Context, name, text string) error {
	args := struct {
		portArgs
		Text string `json:"text"`
	}{portArgs{name}, text}
	return c.Call(ctx, api.CmdWriteStringPort, args, nil)
}

func (c *Client) DisconnectAll(ctx context.Context) error {
	return c.Call(ctx, api.CmdDisconnectAllPorts, nil, nil)
}

func (c *Client) OpenPorts(ctx context.Context) ([]string, error) {
	var out []string
	err := c.Call(ctx, api.CmdOpenPorts, nil, &out)
	return out, err
}
