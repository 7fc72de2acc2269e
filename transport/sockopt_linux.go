// File: transport/sockopt_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

// applySockOpts tunes the socket. Buffer sizes go through setsockopt
// directly so SO_RCVBUF/SO_SNDBUF are set before traffic flows;
// TCP_QUICKACK trims ack latency on the mostly request/response
// workload.
func applySockOpts(conn *net.TCPConn, opts TCPOptions) error {
	if err := conn.SetNoDelay(opts.NoDelay); err != nil {
		return err
	}
	if err := conn.SetKeepAlive(opts.KeepAlive); err != nil {
		return err
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if opts.SendBufferSize > 0 {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBufferSize); err != nil {
				sockErr = err
				return
			}
		}
		if opts.ReceiveBufferSize > 0 {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, opts.ReceiveBufferSize); err != nil {
				sockErr = err
				return
			}
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}
