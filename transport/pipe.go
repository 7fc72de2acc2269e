// File: transport/pipe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PipeChannel is an in-process channel pair used by the loopback
// factory and the test suite. Bytes written on one side are fed to the
// other side's transport through the same decode path real sockets use,
// so framing, dispatch and teardown behave identically.

package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/nodewire/api"
)

var errChannelClosed = errors.New("channel is closed")

// PipeChannel is one end of an in-process duplex byte stream.
type PipeChannel struct {
	name string
	peer *PipeChannel
	t    *Transport

	mu    sync.Mutex
	inbuf []byte

	wake chan struct{}
	quit chan struct{}

	closed atomic.Bool

	listenersMu    sync.Mutex
	closeListeners []func()
}

// NewPipePair creates two connected channel ends. Each end must be
// bound to its transport before traffic flows.
func NewPipePair(name string) (*PipeChannel, *PipeChannel) {
	a := &PipeChannel{name: name + "/a", wake: make(chan struct{}, 1), quit: make(chan struct{})}
	b := &PipeChannel{name: name + "/b", wake: make(chan struct{}, 1), quit: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// Bind attaches the receiving transport and starts the read pump.
func (p *PipeChannel) Bind(t *Transport) {
	p.t = t
	go p.readLoop()
}

// Send delivers b to the peer. Ordering across Send calls is the
// caller's arrival order; the callback fires once the bytes are queued
// on the remote side.
func (p *PipeChannel) Send(b []byte, done api.SendCallback) {
	if p.closed.Load() || p.peer.closed.Load() {
		if done != nil {
			done(errChannelClosed)
		}
		return
	}
	data := make([]byte, len(b))
	copy(data, b)
	peer := p.peer
	peer.mu.Lock()
	peer.inbuf = append(peer.inbuf, data...)
	peer.mu.Unlock()
	select {
	case peer.wake <- struct{}{}:
	default:
	}
	if done != nil {
		go done(nil)
	}
}

func (p *PipeChannel) readLoop() {
	for {
		select {
		case <-p.quit:
			return
		case <-p.wake:
			if !p.pump() {
				return
			}
		}
	}
}

// pump decodes as many complete frames as the buffer holds. A decode
// error is connection-fatal and closes both ends, exactly like a socket
// teardown.
func (p *PipeChannel) pump() bool {
	for {
		p.mu.Lock()
		buf := p.inbuf
		p.mu.Unlock()
		if len(buf) == 0 {
			return true
		}
		consumed, err := p.t.ConsumeNetworkReads(p, buf)
		if err != nil {
			p.t.onException(p, err)
			return false
		}
		if consumed == 0 {
			return true
		}
		p.mu.Lock()
		p.inbuf = p.inbuf[consumed:]
		p.mu.Unlock()
	}
}

// Close shuts down both ends, like a socket close observed as EOF by
// the peer. Idempotent.
func (p *PipeChannel) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.quit)
	p.listenersMu.Lock()
	listeners := p.closeListeners
	p.closeListeners = nil
	p.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	if p.peer != nil {
		p.peer.Close()
	}
	return nil
}

// IsOpen reports whether this end is still usable.
func (p *PipeChannel) IsOpen() bool { return !p.closed.Load() }

// RemoteAddr identifies the peer end.
func (p *PipeChannel) RemoteAddr() string { return "pipe://" + p.peer.name }

// AddCloseListener registers fn to run once on close; immediately if
// already closed.
func (p *PipeChannel) AddCloseListener(fn func()) {
	if p.closed.Load() {
		fn()
		return
	}
	p.listenersMu.Lock()
	closed := p.closed.Load()
	if !closed {
		p.closeListeners = append(p.closeListeners, fn)
	}
	p.listenersMu.Unlock()
	if closed {
		fn()
	}
}

// PipeFactory dials pipe channels into a fixed remote transport. It
// exists for loopback wiring and tests; production traffic uses the TCP
// factory.
type PipeFactory struct {
	mu     sync.Mutex
	remote *Transport
	local  *Transport
	seq    int
}

// NewPipeFactory creates a factory whose dials land on remote.
func NewPipeFactory(remote *Transport) *PipeFactory {
	return &PipeFactory{remote: remote}
}

// BindLocal sets the transport that owns the dialing ends.
func (f *PipeFactory) BindLocal(t *Transport) { f.local = t }

// Dial creates a channel pair, binds the far end to the remote
// transport and reports the connect synchronously.
func (f *PipeFactory) Dial(addr string, connected api.SendCallback) (api.Channel, error) {
	f.mu.Lock()
	f.seq++
	name := fmt.Sprintf("%s#%d", addr, f.seq)
	f.mu.Unlock()

	local, remote := NewPipePair(name)
	local.Bind(f.local)
	remote.Bind(f.remote)
	if err := f.remote.ServeChannel(remote); err != nil {
		local.Close()
		return nil, err
	}
	if connected != nil {
		connected(nil)
	}
	return local, nil
}
