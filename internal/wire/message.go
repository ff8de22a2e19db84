// Package wire implements the frontend protocol: a hello exchange followed
// by newline-delimited JSON requests, responses and events.
package wire

import "encoding/json"

// Request is one frontend command.
type Request struct {
	ID   uint64          `json:"id"`
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ErrorBody is the error object of a failed Response.
type ErrorBody struct {
	Kind        string `json:"kind"`
	IOKind      string `json:"io_kind,omitempty"`
	Description string `json:"description,omitempty"`
}

func (e *ErrorBody) Error() string {
	k := e.Kind
	if e.IOKind != "" {
		k += "(" + e.IOKind + ")"
	}
	if e.Description == "" {
		return k
	}
	return k + ": " + e.Description
}

// Response answers the Request with the same ID.
type Response struct {
	ID     uint64     `json:"id"`
	OK     bool       `json:"ok"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// Message is any line a server sends: a Response (Event empty) or an event.
type Message struct {
	ID      uint64          `json:"id"`
	OK      bool            `json:"ok"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsEvent reports whether m is an event push rather than a response.
func (m *Message) IsEvent() bool { return m.Event != "" }
