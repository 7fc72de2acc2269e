// File: api/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "io"

// Executor runs tasks off the I/O goroutine. Handler execution and
// response callbacks are always handed off through one of these so a
// slow handler never stalls frame decoding.
type Executor interface {
	// Submit schedules fn, or returns an error when the executor is
	// saturated or closed.
	Submit(fn func()) error

	// SubmitForced schedules fn unconditionally. Used for work that must
	// never be rejected, such as response callbacks and force-execution
	// request handlers.
	SubmitForced(fn func())
}

// ResponseHandler receives the terminal outcome of one outbound request.
// Exactly one of HandleResponse or HandleError is invoked, exactly once.
type ResponseHandler interface {
	// Read deserializes the response payload. The engine verifies the
	// stream is fully consumed afterwards.
	Read(r io.Reader) (any, error)

	// HandleResponse delivers the value produced by Read.
	HandleResponse(resp any)

	// HandleError delivers a failure: a decoded remote error, a response
	// deserialization failure, or a synthetic disconnect failure.
	HandleError(err error)

	// ForceExecution reports whether delivery must bypass executor
	// admission control.
	ForceExecution() bool
}

// MemoryBreaker accounts inbound request bytes against an external
// memory limit. The engine charges before dispatch and releases once
// per charge; the rejection policy itself belongs to the implementation.
type MemoryBreaker interface {
	// Charge reserves n bytes, or returns an error when the limit would
	// be exceeded. label identifies the charge for diagnostics.
	Charge(n int64, label string) error

	// ChargeWithoutLimit reserves n bytes unconditionally.
	ChargeWithoutLimit(n int64)

	// Release returns n previously charged bytes.
	Release(n int64)
}
