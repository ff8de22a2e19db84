// Command serialctl drives a serialport-server over TCP.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/client"
	"github.com/spf13/cobra"
)

type globalOpts struct {
	addr    string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globalOpts{}
	root := &cobra.Command{
		Use:   "serialctl",
		Short: "Control serial ports exposed by serialport-server",
		Long: `serialctl talks to a serialport-server instance and manages the
serial ports it owns: list devices, open and close ports, stream reads and
write data.

Example usage:
  serialctl ports
  serialctl connect /dev/ttyUSB0 --baud 9600
  serialctl read /dev/ttyUSB0
  serialctl write /dev/ttyUSB0 "AT" --newline`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.addr, "addr", "a", "localhost:20100", "Server address (host:port)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 5*time.Second, "Dial and request timeout")

	root.AddCommand(
		newPortsCmd(g),
		newOpenCmd(g),
		newConnectCmd(g),
		newCloseCmd(g),
		newCloseAllCmd(g),
		newCancelCmd(g),
		newDisconnectAllCmd(g),
		newReadCmd(g),
		newWriteCmd(g),
	)
	return root
}

// dial connects and returns a client together with a request-scoped context.
func (g *globalOpts) dial(cmd *cobra.Command) (*client.Client, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	c, err := client.Dial(ctx, g.addr, g.timeout)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connect to %s: %w", g.addr, err)
	}
	return c, ctx, func() { cancel(); _ = c.Close() }, nil
}

// call runs a single request against the server.
func (g *globalOpts) call(cmd *cobra.Command, fn func(context.Context, *client.Client) error) error {
	c, ctx, done, err := g.dial(cmd)
	if err != nil {
		return err
	}
	defer done()
	return fn(ctx, c)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
