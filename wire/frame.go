// File: wire/frame.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame decoding over already-buffered bytes. TryDecode never blocks
// and never allocates proportionally to a hostile length field: the
// length is validated against the configured ceiling before any body
// bytes are touched.

package wire

import (
	"encoding/binary"
	"fmt"
)

// Frame is one decoded wire message. Ping frames have Ping set and no
// other fields. Body aliases the input buffer; callers must consume it
// before advancing their read cursor past the reported length.
type Frame struct {
	Ping      bool
	RequestID int64
	Status    Status
	Version   int32
	Body      []byte
}

// ForeignProtocolError reports bytes that look like an HTTP request
// hitting the transport port. Callers reply with a plain-text
// diagnostic instead of treating the stream as corrupt.
type ForeignProtocolError struct {
	Method string
}

func (e *ForeignProtocolError) Error() string {
	return fmt.Sprintf("received HTTP %s on transport port, this is not an HTTP port", e.Method)
}

// CorruptStreamError reports a header that matches neither the marker
// nor a known foreign protocol. The first four bytes are kept for
// diagnostics.
type CorruptStreamError struct {
	Header [4]byte
	Reason string
}

func (e *CorruptStreamError) Error() string {
	if e.Reason != "" {
		return "corrupt transport stream: " + e.Reason
	}
	return fmt.Sprintf("invalid transport message format, got (%#x,%#x,%#x,%#x)",
		e.Header[0], e.Header[1], e.Header[2], e.Header[3])
}

// FrameTooLargeError reports a length field beyond the inbound ceiling.
type FrameTooLargeError struct {
	Length int32
	Limit  int32
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("transport content length %d exceeded %d", e.Length, e.Limit)
}

// httpMethods are the request-line prefixes that classify a buffer as
// foreign HTTP traffic. OPTIONS is matched on six bytes only, since six
// is all the header guarantees.
var httpMethods = []string{"GET", "POST", "PUT", "HEAD", "DELETE", "OPTION", "PATCH", "TRACE"}

func appearsToBeHTTP(b []byte) (string, bool) {
	for _, m := range httpMethods {
		if len(b) >= len(m) && string(b[:len(m)]) == m {
			return m, true
		}
	}
	return "", false
}

// TryDecode attempts to decode one frame from buf. maxLength is the
// inbound frame ceiling (the caller derives it from configured memory,
// typically 90% of the inbound budget).
//
// Returns (nil, 0, nil) when buf does not yet hold a complete frame.
// Returns a Ping frame for the reserved zero length. Returns
// *ForeignProtocolError, *CorruptStreamError or *FrameTooLargeError for
// unusable streams; all three are connection-fatal to the caller.
func TryDecode(buf []byte, maxLength int32) (*Frame, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, nil
	}
	if buf[0] != Marker0 || buf[1] != Marker1 {
		if m, ok := appearsToBeHTTP(buf); ok {
			return nil, 0, &ForeignProtocolError{Method: m}
		}
		var hdr [4]byte
		copy(hdr[:], buf[:4])
		return nil, 0, &CorruptStreamError{Header: hdr}
	}
	length := int32(binary.BigEndian.Uint32(buf[MarkerSize:HeaderSize]))
	if length == PingLength {
		return &Frame{Ping: true}, HeaderSize, nil
	}
	if length < 0 {
		var hdr [4]byte
		copy(hdr[:], buf[:4])
		return nil, 0, &CorruptStreamError{Header: hdr, Reason: fmt.Sprintf("invalid data length: %d", length)}
	}
	if length > maxLength {
		return nil, 0, &FrameTooLargeError{Length: length, Limit: maxLength}
	}
	if length < FixedFieldsSize {
		var hdr [4]byte
		copy(hdr[:], buf[:4])
		return nil, 0, &CorruptStreamError{Header: hdr, Reason: fmt.Sprintf("data length %d below fixed fields", length)}
	}
	total := HeaderSize + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}
	body := buf[HeaderSize:total]
	return &Frame{
		RequestID: int64(binary.BigEndian.Uint64(body[:RequestIDSize])),
		Status:    Status(body[RequestIDSize]),
		Version:   int32(binary.BigEndian.Uint32(body[RequestIDSize+StatusSize : FixedFieldsSize])),
		Body:      body[FixedFieldsSize:],
	}, total, nil
}
