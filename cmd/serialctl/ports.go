package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/kstaniek/go-serialport-server/internal/client"
	"github.com/kstaniek/go-serialport-server/internal/serialport"
	"github.com/spf13/cobra"
)

func newPortsCmd(g *globalOpts) *cobra.Command {
	var table bool
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports available on the server host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *client.Client) error {
				ports, err := c.AvailablePorts(ctx)
				if err != nil {
					return err
				}
				if len(ports) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
					return nil
				}
				if table {
					renderPortTable(cmd, ports)
					return nil
				}
				for _, p := range ports {
					fmt.Fprintln(cmd.OutOrStdout(), p.ShowName)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&table, "table", "t", false, "Display port metadata as a table")
	return cmd
}

func renderPortTable(cmd *cobra.Command, ports []serialport.PortInfo) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tTYPE\tMANUFACTURER\tPRODUCT\tVID:PID\tSERIAL")
	for _, p := range ports {
		ids := "-"
		if p.VID != "" || p.PID != "" {
			ids = p.VID + ":" + p.PID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.PortName, p.PortType, orDash(p.Manufacturer), orDash(p.Product), ids, orDash(&p.SerialNumber))
	}
	_ = tw.Flush()
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func newOpenCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "List ports currently opened by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *client.Client) error {
				names, err := c.OpenPorts(ctx)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}
}
