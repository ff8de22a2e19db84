package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kstaniek/go-serialport-server/internal/client"
	"github.com/spf13/cobra"
)

func newWriteCmd(g *globalOpts) *cobra.Command {
	var (
		hexMode bool
		newline bool
	)
	cmd := &cobra.Command{
		Use:   "write <port> <data>",
		Short: "Write data to an open port",
		Long: `Write data to an open port.

Example usage:
  serialctl write /dev/ttyUSB0 "AT+GMR" --newline
  serialctl write /dev/ttyUSB0 "de ad be ef" --hex`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, data := args[0], args[1]
			var payload []byte
			if hexMode {
				b, err := parseHex(data)
				if err != nil {
					return err
				}
				payload = b
			}
			if newline {
				if hexMode {
					payload = append(payload, '\r', '\n')
				} else {
					data += "\r\n"
				}
			}
			return g.call(cmd, func(ctx context.Context, c *client.Client) error {
				var err error
				n := len(data)
				if hexMode {
					err = c.Write(ctx, port, payload)
					n = len(payload)
				} else {
					err = c.WriteString(ctx, port, data)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", n, port)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&hexMode, "hex", "x", false, "Interpret data as hex bytes (spaces allowed)")
	cmd.Flags().BoolVarP(&newline, "newline", "n", false, "Append CRLF")
	return cmd
}

// parseHex accepts "deadbeef", "de ad be ef" and "0xde 0xad".
func parseHex(s string) ([]byte, error) {
	var sb strings.Builder
	for _, f := range strings.Fields(s) {
		sb.WriteString(strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X"))
	}
	b, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return b, nil
}
