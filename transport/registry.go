// File: transport/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Action handler registrations and the per-request responder context.

package transport

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/momentics/nodewire/api"
	"github.com/momentics/nodewire/version"
)

// HandlerFunc executes one inbound request. It must terminate the
// exchange through ctx exactly once (SendResponse or SendError); a
// panic is converted into an error response by the dispatcher.
type HandlerFunc func(ctx *RequestContext, req any)

// HandlerRegistration binds an action name to its deserializer,
// handler and execution policy.
type HandlerRegistration struct {
	// Action is the name requests address this handler by.
	Action string

	// Read deserializes the request payload. The dispatcher verifies
	// afterwards that the payload was fully consumed.
	Read func(r io.Reader) (any, error)

	// Handler runs on an executor, never on the I/O goroutine.
	Handler HandlerFunc

	// Executor overrides the transport's default executor when set.
	Executor api.Executor

	// ForceExecution exempts the handler from executor admission control
	// and from the memory breaker limit.
	ForceExecution bool
}

// RequestContext is the responder side of one inbound request. It
// releases the breaker charge exactly once, on the first terminal send.
type RequestContext struct {
	t         *Transport
	channel   api.Channel
	action    string
	requestID int64
	version   version.ID
	compress  bool

	charged  int64
	released atomic.Bool
}

// Action returns the action name of the request being answered.
func (c *RequestContext) Action() string { return c.action }

// RequestID returns the wire request ID.
func (c *RequestContext) RequestID() int64 { return c.requestID }

// RemoteAddr returns the requester's address.
func (c *RequestContext) RemoteAddr() string { return c.channel.RemoteAddr() }

func (c *RequestContext) release() {
	if c.released.CompareAndSwap(false, true) && c.charged > 0 {
		c.t.breaker.Release(c.charged)
	}
}

// SendResponse answers the request with payload.
func (c *RequestContext) SendResponse(payload []byte) error {
	c.release()
	return c.t.sendResponse(c.channel, c.requestID, c.action, payload, c.version, c.compress, 0)
}

// SendError answers the request with an error record.
func (c *RequestContext) SendError(err error) error {
	c.release()
	return c.t.sendErrorResponse(c.channel, c.requestID, c.action, c.version, err)
}

// RegisterRequestHandler registers reg. Registering the same action
// twice is a programming error and fails fast.
func (t *Transport) RegisterRequestHandler(reg *HandlerRegistration) error {
	if reg.Action == "" || reg.Read == nil || reg.Handler == nil {
		return fmt.Errorf("handler registration for [%s] is incomplete", reg.Action)
	}
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	if _, ok := t.handlers[reg.Action]; ok {
		return fmt.Errorf("transport handler for action [%s] is already registered", reg.Action)
	}
	t.handlers[reg.Action] = reg
	return nil
}

func (t *Transport) getRequestHandler(action string) *HandlerRegistration {
	t.handlersMu.RLock()
	defer t.handlersMu.RUnlock()
	return t.handlers[action]
}
