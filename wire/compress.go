// File: wire/compress.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Payload compression. Streams are zlib: the two-byte zlib header is
// the magic the inbound side sniffs, and Close on the writer emits the
// final block plus checksum, making the stream self-delimiting. A
// receiver that reads past the logical end sees a clean EOF instead of
// trailing garbage.

package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// zlibMagic is the first byte of every zlib stream (deflate, 32K window).
const zlibMagic = 0x78

// NotCompressedError reports a payload flagged as compressed whose
// leading bytes match no known compressor. Treating such a payload as
// plain would desynchronize the stream, so this is fatal to the frame.
type NotCompressedError struct {
	Prefix []byte
}

func (e *NotCompressedError) Error() string {
	return fmt.Sprintf("stream marked as compressed, but no compressor found, first bytes %#x", e.Prefix)
}

// DetectCompressed reports whether b starts with a recognized
// compressor magic.
func DetectCompressed(b []byte) bool {
	return len(b) > 0 && b[0] == zlibMagic
}

// NewCompressedReader sniffs body and returns a decompressing reader
// over it. Returns *NotCompressedError when no compressor magic is
// present.
func NewCompressedReader(body []byte) (io.ReadCloser, error) {
	if !DetectCompressed(body) {
		n := len(body)
		if n > 10 {
			n = 10
		}
		return nil, &NotCompressedError{Prefix: append([]byte(nil), body[:n]...)}
	}
	r, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("wire: open compressed stream: %w", err)
	}
	return r, nil
}

// NewCompressedWriter wraps w so that writes are compressed
// transparently. The caller must Close the returned writer to flush the
// end-of-stream marker before the buffer is framed.
func NewCompressedWriter(w io.Writer) *zlib.Writer {
	return zlib.NewWriter(w)
}
