package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/client"
	"github.com/kstaniek/go-serialport-server/internal/event"
	"github.com/kstaniek/go-serialport-server/internal/wire"
	"github.com/spf13/cobra"
)

func newReadCmd(g *globalOpts) *cobra.Command {
	var (
		intervalMs uint64
		size       int
		raw        bool
		duration   time.Duration
	)
	cmd := &cobra.Command{
		Use:     "read <port>",
		Aliases: []string{"monitor"},
		Short:   "Start reading a port and print received data",
		Long: `Start the server side reader of an open port and print what it receives
until interrupted, the device disconnects or --duration elapses.

By default decoded text is printed. Bytes of an incomplete UTF-8 sequence the
server gave up on are reported on stderr. With --raw every chunk is printed as
hex instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port := args[0]
			c, err := client.Dial(cmd.Context(), g.addr, g.timeout)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", g.addr, err)
			}
			defer c.Close()

			reqCtx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			err = c.StartRead(reqCtx, port, intervalMs, size)
			cancel()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var tc context.CancelFunc
				ctx, tc = context.WithTimeout(ctx, duration)
				defer tc()
			}
			p := &printer{port: port, raw: raw, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-c.Done():
					return c.Err()
				case m := <-c.Events():
					if p.handle(m) {
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().Uint64VarP(&intervalMs, "interval", "i", 0, "Pause between reads in milliseconds (0 = server default)")
	cmd.Flags().IntVarP(&size, "size", "s", 0, "Read chunk size in bytes (0 = server default)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print every chunk as hex instead of text")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 = until interrupted)")
	return cmd
}

type printer struct {
	port   string
	raw    bool
	out    io.Writer
	errOut io.Writer
}

// handle prints one event for the port and reports whether the device went away.
func (p *printer) handle(m wire.Message) bool {
	switch m.Event {
	case event.DisconnectName(p.port):
		fmt.Fprintf(p.errOut, "%s disconnected\n", p.port)
		return true
	case event.ReadName(p.port):
		var d event.ReadData
		if err := json.Unmarshal(m.Payload, &d); err != nil {
			return false
		}
		switch {
		case p.raw:
			fmt.Fprintf(p.out, "% x\n", d.Data)
		case d.Flushed:
			fmt.Fprintf(p.errOut, "[incomplete utf-8] % x\n", d.Data)
		}
	case event.ReadStringName(p.port):
		if p.raw {
			return false
		}
		var d event.ReadData
		if err := json.Unmarshal(m.Payload, &d); err != nil {
			return false
		}
		_, _ = p.out.Write(d.Data)
	}
	return false
}
