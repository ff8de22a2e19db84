// Package transport holds the plumbing shared by the TCP front end and the
// serial writers: codec capabilities and the async write funnel.
package transport

import (
	"io"

	"github.com/kstaniek/go-serialport-server/internal/wire"
)

// RequestDecoder decodes one frontend request from a stream.
type RequestDecoder interface {
	DecodeRequest() (wire.Request, error)
}

// BatchEncoder frames outbound messages, either appended to a buffer or
// written directly in one call.
type BatchEncoder interface {
	Append(dst []byte, v any) ([]byte, error)
	EncodeTo(w io.Writer, vs []any) (int, error)
}

// ByteSink is a generic asynchronous byte transmission target.
type ByteSink interface {
	Send([]byte) error
}

// Compile-time assertions.
var (
	_ RequestDecoder = (*wire.Decoder)(nil)
	_ BatchEncoder   = wire.Codec{}
	_ ByteSink       = (*AsyncTx)(nil)
)
