// File: transport/inbound.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Inbound dispatch. ConsumeNetworkReads decodes at most one frame from
// already-buffered bytes and routes it. Errors returned from here are
// connection-fatal; per-request failures are answered over the wire and
// per-response failures go to the request's own failure callback.

package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/momentics/nodewire/api"
	"github.com/momentics/nodewire/version"
	"github.com/momentics/nodewire/wire"
)

// ConsumeNetworkReads decodes one frame from buf and dispatches it,
// returning how many bytes were consumed so the caller can advance its
// read cursor. (0, nil) means more data is needed. A non-nil error
// means the channel's stream is unusable and must be closed; a
// *wire.ForeignProtocolError additionally tells the caller to answer
// with a plain-text diagnostic first.
func (t *Transport) ConsumeNetworkReads(ch api.Channel, buf []byte) (int, error) {
	f, consumed, err := wire.TryDecode(buf, t.maxFrameLength())
	if err != nil {
		return 0, err
	}
	if f == nil {
		return 0, nil
	}
	t.bytesRead.Add(int64(consumed))
	if f.Ping {
		t.keepAlive.receive(ch)
		return consumed, nil
	}
	t.messagesRead.Add(1)
	if err := t.messageReceived(ch, f); err != nil {
		return consumed, err
	}
	return consumed, nil
}

func (t *Transport) messageReceived(ch api.Channel, f *wire.Frame) error {
	var payload io.Reader = bytes.NewReader(f.Body)
	if f.Status.IsCompress() && len(f.Body) > 0 {
		rc, err := wire.NewCompressedReader(f.Body)
		if err != nil {
			return fmt.Errorf("inbound from [%s]: %w", ch.RemoteAddr(), err)
		}
		defer rc.Close()
		payload = rc
	}
	if err := t.policy.Check(version.ID(f.Version), f.Status.IsHandshake()); err != nil {
		return err
	}
	r := bufio.NewReader(payload)
	if f.Status.IsRequest() {
		return t.handleRequest(ch, f, r)
	}
	return t.handleResponse(ch, f, r)
}

func (t *Transport) handleRequest(ch api.Channel, f *wire.Frame, r *bufio.Reader) error {
	action, err := wire.ReadString(r)
	if err != nil {
		return fmt.Errorf("read action from [%s]: %w", ch.RemoteAddr(), err)
	}
	t.notifyRequestReceived(f.RequestID, action)

	if f.Status.IsHandshake() {
		return t.handshaker.handleRequest(ch, f.RequestID, r)
	}

	ctx := &RequestContext{
		t:         t,
		channel:   ch,
		action:    action,
		requestID: f.RequestID,
		version:   version.ID(f.Version),
		compress:  f.Status.IsCompress() || t.compressResponses,
	}

	reg := t.getRequestHandler(action)
	if reg == nil {
		ctx.SendError(&ActionNotFoundError{Action: action})
		return nil
	}

	// Charge the full frame against the breaker before any deserialization
	// or dispatch. Force-execution handlers are accounted but never
	// rejected. A trip aborts only this request.
	frameBytes := int64(len(f.Body) + wire.FixedFieldsSize)
	if reg.ForceExecution {
		t.breaker.ChargeWithoutLimit(frameBytes)
	} else if err := t.breaker.Charge(frameBytes, "<transport_request>"); err != nil {
		ctx.SendError(err)
		return nil
	}
	ctx.charged = frameBytes

	req, err := reg.Read(r)
	if err != nil {
		ctx.SendError(fmt.Errorf("failed to deserialize request for action [%s]: %w", action, err))
		return nil
	}
	if _, err := r.ReadByte(); err != io.EOF {
		ctx.SendError(fmt.Errorf("message not fully read (request) for requestId [%d], action [%s]; resetting",
			f.RequestID, action))
		return nil
	}

	task := func() {
		defer func() {
			if rec := recover(); rec != nil {
				t.log.Error().Interface("panic", rec).Str("action", action).Msg("request handler panicked")
				ctx.SendError(fmt.Errorf("handler for action [%s] failed: %v", action, rec))
			}
		}()
		reg.Handler(ctx, req)
	}
	executor := t.executor
	if reg.Executor != nil {
		executor = reg.Executor
	}
	if reg.ForceExecution {
		executor.SubmitForced(task)
	} else if err := executor.Submit(task); err != nil {
		ctx.SendError(fmt.Errorf("rejected execution of action [%s]: %w", action, err))
	}
	return nil
}

func (t *Transport) handleResponse(ch api.Channel, f *wire.Frame, r *bufio.Reader) error {
	if f.Status.IsHandshake() {
		return t.handshaker.handleResponse(ch, f.RequestID, r, f.Status.IsError())
	}

	pending := t.responseHandlers.Resolve(f.RequestID)
	if pending == nil {
		// Error responses drop the handshake bit on the wire, so a
		// failed handshake answer lands here first.
		if f.Status.IsError() && t.handshaker.resolveError(ch, f.RequestID, r) {
			return nil
		}
		// Benign: the entry was already resolved, typically by a racing
		// connection-close cleanup.
		t.log.Debug().Int64("request_id", f.RequestID).Str("remote", ch.RemoteAddr()).
			Msg("dropping response for unknown or already resolved request")
		return nil
	}
	t.notifyResponseReceived(f.RequestID, pending.Action)

	if f.Status.IsError() {
		remoteErr, err := decodeErrorBody(r, ch.RemoteAddr())
		if err != nil {
			t.deliverError(pending, &ResponseSerializationError{RequestID: f.RequestID, Err: err})
			return nil
		}
		t.deliverError(pending, remoteErr)
		return nil
	}

	resp, err := pending.Handler.Read(r)
	if err != nil {
		t.deliverError(pending, &ResponseSerializationError{RequestID: f.RequestID, Err: err})
		return nil
	}
	if _, err := r.ReadByte(); err != io.EOF {
		// The handler got its value but left bytes behind: a serialization
		// mismatch between the two ends. The exchange is already resolved,
		// so surface it loudly without touching the connection.
		t.log.Error().Int64("request_id", f.RequestID).Str("action", pending.Action).
			Msg("message not fully read (response); serialization mismatch")
	}
	t.deliverResponse(pending, resp)
	return nil
}

// deliverResponse hands the decoded response to the handler off the I/O
// goroutine. Rejection by a saturated executor still produces a terminal
// outcome: the failure callback, on the forced lane.
func (t *Transport) deliverResponse(p *PendingResponse, resp any) {
	task := func() { p.Handler.HandleResponse(resp) }
	if p.Handler.ForceExecution() {
		t.executor.SubmitForced(task)
		return
	}
	if err := t.executor.Submit(task); err != nil {
		t.deliverError(p, fmt.Errorf("rejected execution of response for action [%s]: %w", p.Action, err))
	}
}

// deliverError always uses the forced lane: failure callbacks are part
// of the exactly-once guarantee and must never be dropped.
func (t *Transport) deliverError(p *PendingResponse, err error) {
	t.executor.SubmitForced(func() {
		defer func() {
			if rec := recover(); rec != nil {
				t.log.Error().Interface("panic", rec).Str("action", p.Action).Msg("failure callback panicked")
			}
		}()
		p.Handler.HandleError(err)
	})
}

// IsForeignProtocol reports whether err is the foreign-protocol
// classification, letting channel adapters answer politely.
func IsForeignProtocol(err error) bool {
	var fe *wire.ForeignProtocolError
	return errors.As(err, &fe)
}
