// File: wire/header.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed wire header layout and the status flag byte. Every message on
// the wire starts with the two marker bytes 'E','S' followed by a
// big-endian int32 length. The length excludes the marker and the
// length field itself; a length of zero is a keep-alive ping carrying
// nothing else.

package wire

const (
	// Marker0 and Marker1 open every frame.
	Marker0 = 'E'
	Marker1 = 'S'

	// MarkerSize + LengthSize form the fixed header.
	MarkerSize = 2
	LengthSize = 4
	HeaderSize = MarkerSize + LengthSize

	// Sizes of the fields that follow the header on non-ping frames.
	RequestIDSize = 8
	StatusSize    = 1
	VersionSize   = 4

	// FixedFieldsSize is the non-payload portion of a frame body.
	FixedFieldsSize = RequestIDSize + StatusSize + VersionSize

	// PingLength is the reserved length value denoting a keep-alive.
	PingLength = 0
)

// Status is the frame flag byte.
type Status byte

const (
	StatusRequest   Status = 1 << 0
	StatusError     Status = 1 << 1
	StatusCompress  Status = 1 << 2
	StatusHandshake Status = 1 << 3
)

// IsRequest reports whether the frame carries a request. A frame
// without the request bit is a response.
func (s Status) IsRequest() bool { return s&StatusRequest != 0 }

// IsResponse reports whether the frame carries a response.
func (s Status) IsResponse() bool { return s&StatusRequest == 0 }

// IsError reports whether a response frame carries an encoded error.
func (s Status) IsError() bool { return s&StatusError != 0 }

// IsCompress reports whether the payload is compressed.
func (s Status) IsCompress() bool { return s&StatusCompress != 0 }

// IsHandshake reports whether the frame belongs to the version
// negotiation exchange.
func (s Status) IsHandshake() bool { return s&StatusHandshake != 0 }
