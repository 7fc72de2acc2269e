// File: transport/outbound.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outbound send paths. Every message funnels through internalSend,
// which marks channel activity for the keep-alive loop and converts
// asynchronous write failures into channel teardown. A write failure on
// any frame is connection-fatal; attribution of the failure to pending
// requests happens in the pool close path.

package transport

import (
	"fmt"

	"github.com/momentics/nodewire/api"
	"github.com/momentics/nodewire/version"
	"github.com/momentics/nodewire/wire"
)

func (t *Transport) sendRequestToChannel(ch api.Channel, requestID int64, action string, payload []byte,
	v version.ID, compress bool, status wire.Status) error {

	status |= wire.StatusRequest
	body := wire.AppendString(nil, action)
	body = append(body, payload...)
	msg, err := wire.BuildMessage(requestID, status, int32(v), body, compress)
	if err != nil {
		return fmt.Errorf("build request [%s]: %w", action, err)
	}
	t.internalSend(ch, msg, func(err error) {
		if err == nil {
			t.notifyRequestSent(requestID, action)
		}
	})
	return nil
}

func (t *Transport) sendResponse(ch api.Channel, requestID int64, action string, payload []byte,
	v version.ID, compress bool, status wire.Status) error {

	msg, err := wire.BuildMessage(requestID, status, int32(v), payload, compress)
	if err != nil {
		return fmt.Errorf("build response [%s]: %w", action, err)
	}
	t.internalSend(ch, msg, func(err error) {
		if err == nil {
			t.notifyResponseSent(requestID, action, nil)
		}
	})
	return nil
}

func (t *Transport) sendErrorResponse(ch api.Channel, requestID int64, action string, v version.ID, sendErr error) error {
	body := encodeErrorBody(action, t.nodeName, sendErr.Error())
	msg, err := wire.BuildMessage(requestID, wire.StatusError, int32(v), body, false)
	if err != nil {
		return fmt.Errorf("build error response [%s]: %w", action, err)
	}
	t.internalSend(ch, msg, func(err error) {
		if err == nil {
			t.notifyResponseSent(requestID, action, sendErr)
		}
	})
	return nil
}

// internalSend is the single choke point to the channel. done may be
// nil. The callback runs once; on failure the channel is closed, which
// cascades into pool teardown and pending-request cleanup.
func (t *Transport) internalSend(ch api.Channel, msg []byte, done api.SendCallback) {
	t.keepAlive.markAccessed(ch)
	size := int64(len(msg))
	ch.Send(msg, func(err error) {
		if err != nil {
			t.log.Warn().Err(err).Str("remote", ch.RemoteAddr()).Msg("send message failed")
			t.onException(ch, err)
		} else {
			t.bytesWritten.Add(size)
			t.messagesWritten.Add(1)
		}
		if done != nil {
			done(err)
		}
	})
}
