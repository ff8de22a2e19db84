package main

import (
	"context"
	"fmt"

	"github.com/kstaniek/go-serialport-server/internal/client"
	"github.com/kstaniek/go-serialport-server/internal/serialport"
	"github.com/spf13/cobra"
)

func newConnectCmd(g *globalOpts) *cobra.Command {
	var (
		baud, dataBits, stopBits int
		parity, flow             string
		readTimeoutMs            uint64
	)
	cmd := &cobra.Command{
		Use:   "connect <port>",
		Short: "Open a serial port on the server",
		Long: `Open a serial port on the server. Flags that are not given are left to
the server defaults (115200 baud, 8N1, no flow control, 500ms timeout).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := serialport.ConnectOptions{}
			f := cmd.Flags()
			if f.Changed("baud") {
				opts.BaudRate = &baud
			}
			if f.Changed("data-bits") {
				opts.DataBits = &dataBits
			}
			if f.Changed("stop-bits") {
				opts.StopBits = &stopBits
			}
			if f.Changed("parity") {
				opts.Parity = &parity
			}
			if f.Changed("flow-control") {
				opts.FlowControl = &flow
			}
			if f.Changed("read-timeout") {
				opts.TimeoutMs = &readTimeoutMs
			}
			return g.call(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.Connect(ctx, args[0], opts); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Connected %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&baud, "baud", "b", serialport.DefaultBaudRate, "Baud rate")
	cmd.Flags().IntVar(&dataBits, "data-bits", 8, "Data bits: 5|6|7|8")
	cmd.Flags().IntVar(&stopBits, "stop-bits", 1, "Stop bits: 1|2")
	cmd.Flags().StringVar(&parity, "parity", "none", "Parity: none|odd|even")
	cmd.Flags().StringVar(&flow, "flow-control", "none", "Flow control: none|software|hardware")
	cmd.Flags().Uint64Var(&readTimeoutMs, "read-timeout", uint64(serialport.DefaultTimeout.Milliseconds()), "Device read timeout in milliseconds")
	return cmd
}

// portCmd builds a command that runs one request for a single port argument.
func portCmd(g *globalOpts, use, short, done string, fn func(*client.Client, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <port>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *client.Client) error {
				if err := fn(c, ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", done, args[0])
				return nil
			})
		},
	}
}

// globalCmd builds a command that runs one request without arguments.
func globalCmd(g *globalOpts, use, short, done string, fn func(*client.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *client.Client) error {
				if err := fn(c, ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), done)
				return nil
			})
		},
	}
}

func newCloseCmd(g *globalOpts) *cobra.Command {
	return portCmd(g, "close", "Stop reading and close a port", "Closed", (*client.Client).ClosePort)
}

func newCancelCmd(g *globalOpts) *cobra.Command {
	return portCmd(g, "cancel", "Stop the reader of a port, keeping it open", "Cancelled read on", (*client.Client).CancelRead)
}

func newCloseAllCmd(g *globalOpts) *cobra.Command {
	return globalCmd(g, "close-all", "Stop every active reader", "Stopped all readers", (*client.Client).CloseAll)
}

func newDisconnectAllCmd(g *globalOpts) *cobra.Command {
	return globalCmd(g, "disconnect-all", "Close every open port", "Closed all ports", (*client.Client).DisconnectAll)
}
