// File: wire/message_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// TestBuildMessage_Compressed verifies the compress bit is set, the
// fixed fields stay readable and the payload decompresses to the
// original bytes.
func TestBuildMessage_Compressed(t *testing.T) {
	payload := bytes.Repeat([]byte("compressible payload "), 50)
	msg, err := BuildMessage(9, StatusRequest, 3, payload, true)
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	f, _, err := TryDecode(msg, 1<<20)
	if err != nil || f == nil {
		t.Fatalf("TryDecode: frame=%v err=%v", f, err)
	}
	if !f.Status.IsCompress() {
		t.Fatal("compress bit not set")
	}
	if f.RequestID != 9 || f.Version != 3 {
		t.Errorf("fixed fields: id=%d version=%d", f.RequestID, f.Version)
	}
	rc, err := NewCompressedReader(f.Body)
	if err != nil {
		t.Fatalf("NewCompressedReader: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("decompressed payload mismatch")
	}
}

// TestBuildMessage_EmptyPayloadNotCompressed keeps empty bodies plain
// even when compression is requested.
func TestBuildMessage_EmptyPayloadNotCompressed(t *testing.T) {
	msg, err := BuildMessage(1, 0, 1, nil, true)
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	f, _, err := TryDecode(msg, 1<<20)
	if err != nil || f == nil {
		t.Fatalf("TryDecode: frame=%v err=%v", f, err)
	}
	if f.Status.IsCompress() {
		t.Error("compress bit set on empty payload")
	}
	if len(f.Body) != 0 {
		t.Errorf("body length %d, want 0", len(f.Body))
	}
}

// TestNewCompressedReader_BadMagic rejects a body without the zlib
// header instead of feeding garbage downstream.
func TestNewCompressedReader_BadMagic(t *testing.T) {
	_, err := NewCompressedReader([]byte("plain text, not zlib"))
	var nce *NotCompressedError
	if !errors.As(err, &nce) {
		t.Fatalf("expected NotCompressedError, got %v", err)
	}
}

// TestPingBytes checks the six-byte keep-alive layout.
func TestPingBytes(t *testing.T) {
	p := PingBytes()
	want := []byte{'E', 'S', 0, 0, 0, 0}
	if !bytes.Equal(p, want) {
		t.Errorf("ping frame %v, want %v", p, want)
	}
}
