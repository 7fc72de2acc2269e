// File: wire/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Length-prefixed primitives shared by message bodies: strings and
// int32 fields. Strings are uvarint-length-prefixed UTF-8.

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxStringLength bounds a decoded string so a corrupt prefix cannot
// force a giant allocation.
const maxStringLength = 1 << 20

var errStringTooLong = errors.New("wire: string length prefix out of range")

// AppendString appends a uvarint-length-prefixed string to dst.
func AppendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// AppendInt32 appends a big-endian int32 to dst.
func AppendInt32(dst []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(v))
}

// ReadString reads one length-prefixed string from r.
func ReadString(r io.ByteReader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", fmt.Errorf("wire: read string length: %w", err)
	}
	if n > maxStringLength {
		return "", errStringTooLong
	}
	buf := make([]byte, n)
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("wire: read string body: %w", err)
		}
		buf[i] = b
	}
	return string(buf), nil
}

// ReadInt32 reads one big-endian int32 from r.
func ReadInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("wire: read int32: %w", err)
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}
