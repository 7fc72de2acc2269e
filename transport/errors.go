// File: transport/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/momentics/nodewire/wire"
)

var (
	// ErrTransportStopped indicates the transport instance was shut down.
	ErrTransportStopped = errors.New("transport has been stopped")

	// ErrHandshakeTimeout indicates the peer did not answer the version
	// negotiation in time.
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrConnectTimeout indicates not all channels connected in time.
	ErrConnectTimeout = errors.New("connect timed out")
)

// NodeNotConnectedError reports an operation against a pool that is
// closed or closing. Pending requests cut off by a disconnect receive
// this as their synthetic failure.
type NodeNotConnectedError struct {
	Addr   string
	Reason string
}

func (e *NodeNotConnectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("node [%s] not connected", e.Addr)
	}
	return fmt.Sprintf("node [%s] not connected: %s", e.Addr, e.Reason)
}

// ConnectError reports a failed connection attempt.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to [%s] failed: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ActionNotFoundError reports a request naming an unregistered action.
// Recoverable: it is answered over the wire, the connection stays open.
type ActionNotFoundError struct {
	Action string
}

func (e *ActionNotFoundError) Error() string {
	return fmt.Sprintf("no handler found for action [%s]", e.Action)
}

// ResponseSerializationError reports a response body the registered
// handler could not deserialize. Delivered to that handler only.
type ResponseSerializationError struct {
	RequestID int64
	Err       error
}

func (e *ResponseSerializationError) Error() string {
	return fmt.Sprintf("failed to deserialize response for request [%d]: %v", e.RequestID, e.Err)
}

func (e *ResponseSerializationError) Unwrap() error { return e.Err }

// RemoteError is an error response decoded off the wire: the remote
// node's description of why a request failed there.
type RemoteError struct {
	Action   string
	NodeName string
	Addr     string
	Message  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("[%s][%s][%s] %s", e.NodeName, e.Addr, e.Action, e.Message)
}

// encodeErrorBody serializes an error for the wire: action, node name,
// message. The receiver attaches the peer address itself.
func encodeErrorBody(action, nodeName, message string) []byte {
	body := wire.AppendString(nil, action)
	body = wire.AppendString(body, nodeName)
	return wire.AppendString(body, message)
}

// decodeErrorBody reads an error record and stamps it with the address
// the frame arrived from.
func decodeErrorBody(r *bufio.Reader, remoteAddr string) (*RemoteError, error) {
	action, err := wire.ReadString(r)
	if err != nil {
		return nil, err
	}
	nodeName, err := wire.ReadString(r)
	if err != nil {
		return nil, err
	}
	message, err := wire.ReadString(r)
	if err != nil {
		return nil, err
	}
	return &RemoteError{Action: action, NodeName: nodeName, Addr: remoteAddr, Message: message}, nil
}
