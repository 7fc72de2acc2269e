// File: transport/handshake.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Version negotiation. Exactly one handshake runs per new pool, on the
// first physical channel, before any other traffic. The pending entry
// resolves exactly once: response, timeout and channel-close race for a
// single remove-and-return.

package transport

import (
	"bufio"
	"fmt"
	"sync"
	"time"

	"github.com/momentics/nodewire/api"
	"github.com/momentics/nodewire/version"
	"github.com/momentics/nodewire/wire"
)

// HandshakeAction is the reserved action name of the negotiation
// exchange.
const HandshakeAction = "internal:tcp/handshake"

type pendingHandshake struct {
	channel api.Channel
	done    func(version.ID, error)
	timer   *time.Timer
}

// handshaker runs both sides of the version negotiation.
type handshaker struct {
	t *Transport

	mu      sync.Mutex
	pending map[int64]*pendingHandshake

	completed int64
}

func newHandshaker(t *Transport) *handshaker {
	return &handshaker{t: t, pending: make(map[int64]*pendingHandshake)}
}

// sendHandshake initiates the exchange on ch. done fires exactly once
// with the negotiated version or a terminal failure; the timeout and a
// channel close both count as terminal failures.
func (h *handshaker) sendHandshake(requestID int64, ch api.Channel, timeout time.Duration, done func(version.ID, error)) {
	p := &pendingHandshake{channel: ch, done: done}
	h.mu.Lock()
	h.pending[requestID] = p
	h.mu.Unlock()

	if timeout > 0 {
		p.timer = time.AfterFunc(timeout, func() {
			if h.remove(requestID) != nil {
				done(0, fmt.Errorf("%w after %s on [%s]", ErrHandshakeTimeout, timeout, ch.RemoteAddr()))
			}
		})
	}
	ch.AddCloseListener(func() {
		if h.remove(requestID) != nil {
			done(0, &NodeNotConnectedError{Addr: ch.RemoteAddr(), Reason: "connection closed during handshake"})
		}
	})

	// The body carries our true version; the frame itself is stamped
	// with the regular compatibility floor so an older peer can read it.
	payload := wire.AppendInt32(nil, int32(h.t.policy.Current))
	err := h.t.sendRequestToChannel(ch, requestID, HandshakeAction, payload,
		h.t.policy.WireVersion(), false, wire.StatusHandshake)
	if err != nil {
		if h.remove(requestID) != nil {
			done(0, err)
		}
	}
}

// remove is the one-shot resolution point.
func (h *handshaker) remove(requestID int64) *pendingHandshake {
	h.mu.Lock()
	p := h.pending[requestID]
	if p != nil {
		delete(h.pending, requestID)
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	h.mu.Unlock()
	return p
}

// handleRequest answers an inbound handshake with our own version.
func (h *handshaker) handleRequest(ch api.Channel, requestID int64, r *bufio.Reader) error {
	peer, err := wire.ReadInt32(r)
	if err != nil {
		return fmt.Errorf("handshake request from [%s]: %w", ch.RemoteAddr(), err)
	}
	h.mu.Lock()
	h.completed++
	h.mu.Unlock()

	payload := wire.AppendInt32(nil, int32(h.t.policy.Current))
	responseVersion := h.t.policy.Negotiate(version.ID(peer))
	return h.t.sendResponse(ch, requestID, HandshakeAction, payload, responseVersion, false, wire.StatusHandshake)
}

// handleResponse resolves the pending exchange. isError covers the case
// of a peer that answered the handshake with an error response.
func (h *handshaker) handleResponse(ch api.Channel, requestID int64, r *bufio.Reader, isError bool) error {
	p := h.remove(requestID)
	if p == nil {
		h.t.log.Debug().Int64("request_id", requestID).Str("remote", ch.RemoteAddr()).
			Msg("handshake response for unknown or already resolved request")
		return nil
	}
	if isError {
		remoteErr, err := decodeErrorBody(r, ch.RemoteAddr())
		if err != nil {
			p.done(0, &ResponseSerializationError{RequestID: requestID, Err: err})
			return nil
		}
		p.done(0, remoteErr)
		return nil
	}
	peer, err := wire.ReadInt32(r)
	if err != nil {
		p.done(0, &ResponseSerializationError{RequestID: requestID, Err: err})
		return nil
	}
	if err := h.t.policy.Check(version.ID(peer), true); err != nil {
		p.done(0, fmt.Errorf("handshake with [%s] failed: %w", ch.RemoteAddr(), err))
		return nil
	}
	p.done(h.t.policy.Negotiate(version.ID(peer)), nil)
	return nil
}

// resolveError routes a plain error response to a pending handshake, if
// any. Error responses drop the handshake status bit, so the dispatcher
// falls back here when the regular registry has no entry.
func (h *handshaker) resolveError(ch api.Channel, requestID int64, r *bufio.Reader) bool {
	h.mu.Lock()
	_, ok := h.pending[requestID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.handleResponse(ch, requestID, r, true)
	return true
}

// numPending returns the handshakes still awaiting a response.
func (h *handshaker) numPending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// numCompleted returns how many inbound handshakes were answered.
func (h *handshaker) numCompleted() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.completed
}
