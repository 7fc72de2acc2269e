// File: wire/frame_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wire

import (
	"bytes"
	"errors"
	"testing"
)

// TestTryDecode_RoundTrip builds a message and decodes it back.
func TestTryDecode_RoundTrip(t *testing.T) {
	payload := []byte("hello transport")
	msg, err := BuildMessage(42, StatusRequest, 7, payload, false)
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	f, consumed, err := TryDecode(msg, 1<<20)
	if err != nil {
		t.Fatalf("TryDecode: %v", err)
	}
	if f == nil {
		t.Fatal("expected a complete frame")
	}
	if consumed != len(msg) {
		t.Errorf("consumed %d, want %d", consumed, len(msg))
	}
	if f.RequestID != 42 {
		t.Errorf("request id %d, want 42", f.RequestID)
	}
	if !f.Status.IsRequest() || f.Status.IsError() || f.Status.IsCompress() || f.Status.IsHandshake() {
		t.Errorf("unexpected status bits: %#x", byte(f.Status))
	}
	if f.Version != 7 {
		t.Errorf("version %d, want 7", f.Version)
	}
	if !bytes.Equal(f.Body, payload) {
		t.Errorf("body %q, want %q", f.Body, payload)
	}
}

// TestTryDecode_Incomplete feeds partial buffers; none may produce a
// frame or an error.
func TestTryDecode_Incomplete(t *testing.T) {
	msg, err := BuildMessage(1, StatusRequest, 1, []byte("abcdef"), false)
	if err != nil {
		t.Fatalf("BuildMessage: %v", err)
	}
	for n := 0; n < len(msg); n++ {
		f, consumed, err := TryDecode(msg[:n], 1<<20)
		if err != nil {
			t.Fatalf("prefix %d: unexpected error %v", n, err)
		}
		if f != nil || consumed != 0 {
			t.Fatalf("prefix %d: got frame %v consumed %d", n, f, consumed)
		}
	}
}

// TestTryDecode_Ping decodes the reserved zero-length frame.
func TestTryDecode_Ping(t *testing.T) {
	buf := append(PingBytes(), 0xAA, 0xBB) // trailing bytes of the next frame
	f, consumed, err := TryDecode(buf, 1<<20)
	if err != nil {
		t.Fatalf("TryDecode: %v", err)
	}
	if f == nil || !f.Ping {
		t.Fatalf("expected ping frame, got %+v", f)
	}
	if consumed != HeaderSize {
		t.Errorf("consumed %d, want %d", consumed, HeaderSize)
	}
}

// TestTryDecode_HTTPTraffic classifies an HTTP request line as foreign
// protocol rather than corruption.
func TestTryDecode_HTTPTraffic(t *testing.T) {
	_, _, err := TryDecode([]byte("GET / HTTP/1.1\r\n"), 1<<20)
	var fe *ForeignProtocolError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForeignProtocolError, got %v", err)
	}
	if fe.Method != "GET" {
		t.Errorf("method %q, want GET", fe.Method)
	}
}

// TestTryDecode_CorruptHeader reports the offending bytes.
func TestTryDecode_CorruptHeader(t *testing.T) {
	_, _, err := TryDecode([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x00}, 1<<20)
	var ce *CorruptStreamError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CorruptStreamError, got %v", err)
	}
	if ce.Header != [4]byte{0xDE, 0xAD, 0xBE, 0xEF} {
		t.Errorf("header bytes %v", ce.Header)
	}
}

// TestTryDecode_NegativeLength treats a negative length field as
// corruption, not as a control frame.
func TestTryDecode_NegativeLength(t *testing.T) {
	buf := []byte{Marker0, Marker1, 0xFF, 0xFF, 0xFF, 0xFF}
	_, _, err := TryDecode(buf, 1<<20)
	var ce *CorruptStreamError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CorruptStreamError, got %v", err)
	}
}

// TestTryDecode_Oversized rejects a hostile length before the body
// arrives, without allocating for it.
func TestTryDecode_Oversized(t *testing.T) {
	buf := []byte{Marker0, Marker1, 0x40, 0x00, 0x00, 0x00} // 1 GiB
	_, _, err := TryDecode(buf, 1024)
	var fe *FrameTooLargeError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FrameTooLargeError, got %v", err)
	}
	if fe.Length != 0x40000000 || fe.Limit != 1024 {
		t.Errorf("length %d limit %d", fe.Length, fe.Limit)
	}
}

// TestTryDecode_LengthBelowFixedFields rejects frames too short to hold
// the request id, status and version.
func TestTryDecode_LengthBelowFixedFields(t *testing.T) {
	buf := []byte{Marker0, Marker1, 0x00, 0x00, 0x00, 0x05}
	_, _, err := TryDecode(buf, 1<<20)
	var ce *CorruptStreamError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CorruptStreamError, got %v", err)
	}
}
