// File: wire/stream_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wire

import (
	"bufio"
	"bytes"
	"testing"
)

// TestStringRoundTrip writes and reads back length-prefixed strings,
// including empty and multi-byte ones.
func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "internal:tcp/handshake", "uniçøde"} {
		buf := AppendString(nil, s)
		got, err := ReadString(bufio.NewReader(bytes.NewReader(buf)))
		if err != nil {
			t.Fatalf("ReadString(%q): %v", s, err)
		}
		if got != s {
			t.Errorf("got %q, want %q", got, s)
		}
	}
}

// TestReadString_HostileLength rejects a length prefix beyond the
// sanity bound before allocating.
func TestReadString_HostileLength(t *testing.T) {
	var buf []byte
	buf = append(buf, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F) // uvarint ~34 GB
	if _, err := ReadString(bufio.NewReader(bytes.NewReader(buf))); err == nil {
		t.Fatal("expected error for hostile length prefix")
	}
}

// TestInt32RoundTrip covers sign and byte order.
func TestInt32RoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 1 << 30, -(1 << 30)} {
		buf := AppendInt32(nil, v)
		got, err := ReadInt32(bytes.NewReader(buf))
		if err != nil {
			t.Fatalf("ReadInt32(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("got %d, want %d", got, v)
		}
	}
}
