// File: transport/sockopt_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !linux

package transport

import "net"

// applySockOpts applies the portable subset of socket options.
func applySockOpts(conn *net.TCPConn, opts TCPOptions) error {
	if err := conn.SetNoDelay(opts.NoDelay); err != nil {
		return err
	}
	if err := conn.SetKeepAlive(opts.KeepAlive); err != nil {
		return err
	}
	if opts.SendBufferSize > 0 {
		if err := conn.SetWriteBuffer(opts.SendBufferSize); err != nil {
			return err
		}
	}
	if opts.ReceiveBufferSize > 0 {
		if err := conn.SetReadBuffer(opts.ReceiveBufferSize); err != nil {
			return err
		}
	}
	return nil
}
