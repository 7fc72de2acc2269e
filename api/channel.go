// File: api/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel abstracts one physical, ordered, bidirectional byte stream to
// a peer. The engine never blocks on a channel: sends complete through
// an asynchronous callback and lifecycle changes arrive via listeners.

package api

// SendCallback is invoked exactly once per Send with a nil error on
// success or the write failure otherwise. It may run on any goroutine.
type SendCallback func(err error)

// Channel is the minimal surface the engine needs from a transport
// connection. Implementations must be safe for concurrent use.
type Channel interface {
	// Send hands the buffer to the channel for ordered delivery. The
	// buffer must not be mutated until done fires. Send never blocks on
	// network I/O.
	Send(b []byte, done SendCallback)

	// Close shuts the channel down. Idempotent. Close listeners fire
	// exactly once, after the channel stops accepting sends.
	Close() error

	// IsOpen reports whether the channel still accepts sends.
	IsOpen() bool

	// RemoteAddr returns the peer address in host:port form, or a
	// descriptive placeholder for non-network channels.
	RemoteAddr() string

	// AddCloseListener registers fn to run when the channel closes. If
	// the channel is already closed, fn runs immediately.
	AddCloseListener(fn func())
}

// ChannelFactory opens channels to remote peers. Dial returns the
// pending channel immediately; connected fires exactly once when the
// connect attempt finishes. A non-nil error from connected means the
// channel never became usable.
type ChannelFactory interface {
	Dial(addr string, connected SendCallback) (Channel, error)
}
