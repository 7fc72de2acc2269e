// File: wire/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outbound message serialization: header, fixed fields, optionally
// compressed payload. The version argument must already be the
// negotiated min(local, peer); this builder writes whatever it is
// given and the negotiation itself happens exactly once, at the send
// call sites.

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PingBytes returns the six-byte keep-alive frame. The slice is freshly
// allocated per call; channels take ownership of send buffers.
func PingBytes() []byte {
	return []byte{Marker0, Marker1, 0, 0, 0, 0}
}

// BuildMessage serializes one outbound message. payload is the opaque
// body (for requests: action string then request bytes; for responses:
// response bytes; for errors: the encoded error record). When compress
// is set the payload is zlib-wrapped and the compress status bit is
// added; the fixed fields stay uncompressed so the receiver can always
// read them directly.
func BuildMessage(requestID int64, status Status, version int32, payload []byte, compress bool) ([]byte, error) {
	var body bytes.Buffer
	if compress && len(payload) > 0 {
		status |= StatusCompress
		zw := NewCompressedWriter(&body)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("wire: compress payload: %w", err)
		}
		// Close writes the end-of-stream marker; without it the
		// receiver's full-consumption check reads garbage.
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("wire: finish compressed payload: %w", err)
		}
	} else {
		body.Write(payload)
	}

	length := FixedFieldsSize + body.Len()
	msg := make([]byte, 0, HeaderSize+length)
	msg = append(msg, Marker0, Marker1)
	msg = binary.BigEndian.AppendUint32(msg, uint32(length))
	msg = binary.BigEndian.AppendUint64(msg, uint64(requestID))
	msg = append(msg, byte(status))
	msg = binary.BigEndian.AppendUint32(msg, uint32(version))
	msg = append(msg, body.Bytes()...)
	return msg, nil
}
