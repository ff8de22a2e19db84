package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	var c Codec
	in := Request{ID: 7, Cmd: "connect_port", Args: json.RawMessage(`{"port_name":"COM3","baud_rate":9600}`)}
	line, err := c.Append(nil, in)
	if err != nil {
		t.Fatal(err)
	}
	if line[len(line)-1] != '\n' {
		t.Fatal("missing terminator")
	}
	got, err := NewDecoder(bytes.NewReader(line)).DecodeRequest()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != in.ID || got.Cmd != in.Cmd || !bytes.Equal(got.Args, in.Args) {
		t.Fatalf("got %+v want %+v", got, in)
	}
}

func TestEncodeToBatches(t *testing.T) {
	var buf bytes.Buffer
	n, err := Codec{}.EncodeTo(&buf, []any{
		Response{ID: 1, OK: true},
		Response{ID: 2, Error: &ErrorBody{Kind: "NoDevice", Description: "Port COM9 not found"}},
		map[string]any{"event": "plugin:serialport:disconnect-COM1", "payload": struct{}{}},
	})
	if err != nil || n != buf.Len() {
		t.Fatalf("n=%d err=%v", n, err)
	}
	want := `{"id":1,"ok":true}
{"id":2,"ok":false,"error":{"kind":"NoDevice","description":"Port COM9 not found"}}
{"event":"plugin:serialport:disconnect-COM1","payload":{}}
`
	if buf.String() != want {
		t.Fatalf("got:\n%s", buf.String())
	}
}

func TestDecodeMalformedKeepsStream(t *testing.T) {
	d := NewDecoder(strings.NewReader("not json\n\n{\"id\":3}\n{\"id\":4,\"cmd\":\"open_ports\"}\n"))
	if _, err := d.DecodeRequest(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
	req, err := d.DecodeRequest()
	if !errors.Is(err, ErrMalformed) || req.ID != 3 {
		t.Fatalf("missing cmd: req=%+v err=%v", req, err)
	}
	req, err = d.DecodeRequest()
	if err != nil || req.ID != 4 || req.Cmd != "open_ports" {
		t.Fatalf("req=%+v err=%v", req, err)
	}
	if _, err := d.DecodeRequest(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestDecodeLineTooLong(t *testing.T) {
	long := `{"id":1,"cmd":"` + strings.Repeat("x", MaxLine+10) + "\"}\n"
	d := NewDecoder(strings.NewReader(long + "{\"id\":2,\"cmd\":\"available_ports\"}\n"))
	if _, err := d.DecodeRequest(); !errors.Is(err, ErrLineTooLong) || !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected line too long, got %v", err)
	}
	req, err := d.DecodeRequest()
	if err != nil || req.ID != 2 {
		t.Fatalf("stream not resynchronized: %+v %v", req, err)
	}
}

// timeoutReader yields its chunks one per Read with an error in between.
type timeoutReader struct{ steps []any }

var errTimeout = errors.New("i/o timeout")

func (r *timeoutReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	if err, ok := s.(error); ok {
		return 0, err
	}
	return copy(p, s.(string)), nil
}

func TestDecodeResumesPartialLine(t *testing.T) {
	d := NewDecoder(&timeoutReader{steps: []any{`{"id":9,"cmd":`, errTimeout, `"close_port"}` + "\n"}})
	if _, err := d.DecodeRequest(); !errors.Is(err, errTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	req, err := d.DecodeRequest()
	if err != nil || req.ID != 9 || req.Cmd != "close_port" {
		t.Fatalf("req=%+v err=%v", req, err)
	}
}

func TestDecodeMessage(t *testing.T) {
	d := NewDecoder(strings.NewReader(`{"event":"plugin:serialport:read-COM1","payload":{"size":2,"data":"aGk="}}` + "\n" +
		`{"id":5,"ok":false,"error":{"kind":"IOError","io_kind":"NotFound"}}` + "\n"))
	m, err := d.DecodeMessage()
	if err != nil || !m.IsEvent() || m.Event != "plugin:serialport:read-COM1" {
		t.Fatalf("event: %+v %v", m, err)
	}
	var p struct {
		Size int    `json:"size"`
		Data []byte `json:"data"`
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil || string(p.Data) != "hi" {
		t.Fatalf("payload %+v %v", p, err)
	}
	m, err = d.DecodeMessage()
	if err != nil || m.IsEvent() || m.ID != 5 || m.Error == nil || m.Error.Error() != "IOError(NotFound)" {
		t.Fatalf("response: %+v %v", m, err)
	}
}

func FuzzDecodeRequest(f *testing.F) {
	f.Add([]byte(`{"id":1,"cmd":"available_ports"}` + "\n"))
	f.Add([]byte("\n\n{\"id\":"))
	f.Add([]byte(`{"id":-1,"cmd":7,"args":[]}`))
	f.Fuzz(func(t *testing.T, data []byte) {
		d := NewDecoder(bytes.NewReader(data))
		for i := 0; i < 8; i++ {
			if _, err := d.DecodeRequest(); err != nil && !errors.Is(err, ErrMalformed) {
				return
			}
		}
	})
}
