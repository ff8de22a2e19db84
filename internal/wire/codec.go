package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxLine bounds a single JSON line.
const MaxLine = 1 << 20

var (
	// ErrMalformed marks a line that is not a valid message. The stream
	// stays usable.
	ErrMalformed = errors.New("wire: malformed message")
	// ErrLineTooLong is returned (wrapped in ErrMalformed) when a line
	// exceeds MaxLine; the rest of the line is discarded.
	ErrLineTooLong = errors.New("wire: line too long")
)

// Codec frames values as JSON lines. Stateless and safe for concurrent use.
type Codec struct{}

// Append marshals v and appends it plus '\n' to dst.
func (Codec) Append(dst []byte, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return dst, fmt.Errorf("wire encode: %w", err)
	}
	dst = append(dst, b...)
	return append(dst, '\n'), nil
}

// EncodeTo writes every value in vs to w in one Write call.
func (c Codec) EncodeTo(w io.Writer, vs []any) (int, error) {
	var buf []byte
	for _, v := range vs {
		var err error
		if buf, err = c.Append(buf, v); err != nil {
			return 0, err
		}
	}
	return w.Write(buf)
}

// Decoder reads JSON lines. A read error (for example a deadline) keeps
// any partial line so the next call resumes it.
type Decoder struct {
	r        *bufio.Reader
	partial  []byte
	max      int
	skipping bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), max: MaxLine}
}

// ReadLine returns the next non-empty line without its terminator.
func (d *Decoder) ReadLine() ([]byte, error) {
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !d.skipping {
			d.partial = append(d.partial, chunk...)
		}
		if len(d.partial) > d.max {
			d.partial = d.partial[:0]
			d.skipping = true
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if d.skipping {
			d.skipping = false
			return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrLineTooLong)
		}
		line := bytes.TrimSpace(d.partial)
		d.partial = d.partial[:0]
		if len(line) == 0 {
			continue
		}
		return append([]byte(nil), line...), nil
	}
}

// DecodeRequest reads one Request. Bad JSON or a missing cmd yields an
// error wrapping ErrMalformed.
func (d *Decoder) DecodeRequest() (Request, error) {
	var req Request
	line, err := d.ReadLine()
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.Cmd == "" {
		return req, fmt.Errorf("%w: missing cmd", ErrMalformed)
	}
	return req, nil
}

// DecodeMessage reads one server line.
func (d *Decoder) DecodeMessage() (Message, error) {
	var m Message
	line, err := d.ReadLine()
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}
