package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/hub"
	"github.com/kstaniek/go-serialport-server/internal/metrics"
	"github.com/kstaniek/go-serialport-server/internal/wire"
)

// startReader launches the goroutine decoding requests from one client and
// queueing their responses for the writer.
func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, replies chan<- any, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			cl.Close()
		}()
		dec := wire.NewDecoder(conn)
		for {
			select {
			case <-ctxDone:
				return
			default:
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			req, err := dec.DecodeRequest()
			var resp wire.Response
			switch {
			case err == nil:
				s.totalRequests.Add(1)
				resp = s.Handler.Handle(req)
			case errors.Is(err, wire.ErrMalformed):
				s.totalMalformed.Add(1)
				metrics.IncMalformed()
				logger.Debug("malformed_request", "error", err)
				resp = wire.Response{ID: req.ID, Error: &wire.ErrorBody{Kind: "InvalidInput", Description: err.Error()}}
			case errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed):
				return
			default:
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
			select {
			case replies <- resp:
			case <-cl.Closed:
				return
			case <-ctxDone:
				return
			}
		}
	}()
}
