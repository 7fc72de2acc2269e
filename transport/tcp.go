// File: transport/tcp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP channel adapter. One writer goroutine per channel serializes all
// outbound frames; the read loop accumulates socket bytes and feeds
// them through the transport's decode path. Foreign-protocol traffic is
// answered with a short plain-text line before the socket closes.

package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/nodewire/api"
	"github.com/momentics/nodewire/wire"
)

const (
	tcpReadChunk  = 64 * 1024
	tcpOutboxSize = 256
)

var tcpReadPool = wire.NewBufPool(tcpReadChunk)

// TCPOptions tune the sockets the factory and listener create.
type TCPOptions struct {
	NoDelay           bool
	KeepAlive         bool
	SendBufferSize    int
	ReceiveBufferSize int
	DialTimeout       time.Duration
}

// DefaultTCPOptions mirror the long-lived, latency-sensitive nature of
// node-to-node links.
func DefaultTCPOptions() TCPOptions {
	return TCPOptions{NoDelay: true, KeepAlive: true, DialTimeout: 30 * time.Second}
}

type outboundMsg struct {
	data []byte
	done api.SendCallback
}

// TCPChannel adapts one net.Conn to the channel contract.
type TCPChannel struct {
	conn net.Conn
	t    *Transport

	outbox chan outboundMsg
	quit   chan struct{}
	closed atomic.Bool

	listenersMu    sync.Mutex
	closeListeners []func()
}

func newTCPChannel(t *Transport, conn net.Conn) *TCPChannel {
	c := &TCPChannel{
		conn:   conn,
		t:      t,
		outbox: make(chan outboundMsg, tcpOutboxSize),
		quit:   make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// Send queues b for the writer goroutine. The callback fires after the
// socket write completes or fails; queue overflow while the writer is
// stalled counts as a write failure.
func (c *TCPChannel) Send(b []byte, done api.SendCallback) {
	if c.closed.Load() {
		if done != nil {
			done(errChannelClosed)
		}
		return
	}
	select {
	case c.outbox <- outboundMsg{data: b, done: done}:
	case <-c.quit:
		if done != nil {
			done(errChannelClosed)
		}
	}
}

func (c *TCPChannel) writeLoop() {
	for {
		select {
		case <-c.quit:
			// Fail whatever is still queued.
			for {
				select {
				case m := <-c.outbox:
					if m.done != nil {
						m.done(errChannelClosed)
					}
				default:
					return
				}
			}
		case m := <-c.outbox:
			_, err := c.conn.Write(m.data)
			if m.done != nil {
				m.done(err)
			}
			if err != nil {
				c.Close()
			}
		}
	}
}

func (c *TCPChannel) readLoop() {
	chunk := tcpReadPool.Get()
	defer tcpReadPool.Put(chunk)
	var pending []byte
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			for len(pending) > 0 {
				consumed, derr := c.t.ConsumeNetworkReads(c, pending)
				if derr != nil {
					if IsForeignProtocol(derr) {
						c.conn.Write([]byte("This is not an HTTP port\r\n"))
					}
					c.t.onException(c, derr)
					return
				}
				if consumed == 0 {
					break
				}
				pending = pending[consumed:]
			}
			if len(pending) == 0 {
				pending = nil
			}
		}
		if err != nil {
			c.Close()
			return
		}
	}
}

// Close shuts the socket down and fires close listeners once.
func (c *TCPChannel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.quit)
	err := c.conn.Close()
	c.listenersMu.Lock()
	listeners := c.closeListeners
	c.closeListeners = nil
	c.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	return err
}

// IsOpen reports whether the channel can still send.
func (c *TCPChannel) IsOpen() bool { return !c.closed.Load() }

// RemoteAddr returns the socket's remote endpoint.
func (c *TCPChannel) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// AddCloseListener registers fn to run once on close; immediately if
// already closed.
func (c *TCPChannel) AddCloseListener(fn func()) {
	if c.closed.Load() {
		fn()
		return
	}
	c.listenersMu.Lock()
	closed := c.closed.Load()
	if !closed {
		c.closeListeners = append(c.closeListeners, fn)
	}
	c.listenersMu.Unlock()
	if closed {
		fn()
	}
}

// TCPChannelFactory dials outbound channels over TCP.
type TCPChannelFactory struct {
	t    *Transport
	opts TCPOptions
}

// NewTCPChannelFactory creates a factory with opts. Bind must be called
// before the first dial.
func NewTCPChannelFactory(opts TCPOptions) *TCPChannelFactory {
	return &TCPChannelFactory{opts: opts}
}

// Bind attaches the owning transport.
func (f *TCPChannelFactory) Bind(t *Transport) { f.t = t }

// Dial connects to addr in the background. The connected callback fires
// once the TCP connect finishes; socket option failures are logged, not
// fatal.
func (f *TCPChannelFactory) Dial(addr string, connected api.SendCallback) (api.Channel, error) {
	conn, err := net.DialTimeout("tcp", addr, f.opts.DialTimeout)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := applySockOpts(tc, f.opts); err != nil {
			f.t.log.Warn().Err(err).Str("remote", addr).Msg("socket options not fully applied")
		}
	}
	ch := newTCPChannel(f.t, conn)
	if connected != nil {
		connected(nil)
	}
	return ch, nil
}

// TCPListener accepts inbound channels and enrolls them with the
// transport.
type TCPListener struct {
	t    *Transport
	ln   net.Listener
	opts TCPOptions

	closed atomic.Bool
}

// ListenTCP binds addr and starts accepting.
func ListenTCP(t *Transport, addr string, opts TCPOptions) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &TCPListener{t: t, ln: ln, opts: opts}
	go l.acceptLoop()
	return l, nil
}

// Addr returns the bound address.
func (l *TCPListener) Addr() string { return l.ln.Addr().String() }

func (l *TCPListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() {
				return
			}
			l.t.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			if err := applySockOpts(tc, l.opts); err != nil {
				l.t.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).
					Msg("socket options not fully applied")
			}
		}
		ch := newTCPChannel(l.t, conn)
		if err := l.t.ServeChannel(ch); err != nil {
			ch.Close()
			return
		}
	}
}

// Close stops accepting. Already accepted channels stay open until the
// transport closes them.
func (l *TCPListener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.ln.Close()
}
