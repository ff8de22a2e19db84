package serialport

import "unicode/utf8"

// Reassembler holds bytes of a UTF-8 sequence split across reads.
//
// Boundary detection scans back for the last byte that is not a
// continuation byte (10xxxxxx) and withholds everything from there on.
// It assumes well-formed input: a corrupted stream is split at a
// plausible boundary rather than rejected.
type Reassembler struct {
	pending []byte
}

// Feed appends a copy of b and returns the bytes that can be released as
// text now, or nil when everything is still withheld.
func (r *Reassembler) Feed(b []byte) []byte {
	r.pending = append(r.pending, b...)
	if utf8.Valid(r.pending) {
		out := r.pending
		r.pending = nil
		return out
	}
	i := len(r.pending) - 1
	for i >= 0 && r.pending[i]&0xC0 == 0x80 {
		i--
	}
	if i <= 0 {
		return nil
	}
	out := r.pending[:i:i]
	r.pending = append([]byte(nil), r.pending[i:]...)
	return out
}

// Flush returns and clears the withheld bytes.
func (r *Reassembler) Flush() []byte {
	out := r.pending
	r.pending = nil
	return out
}

// Pending reports how many bytes are withheld.
func (r *Reassembler) Pending() int { return len(r.pending) }
