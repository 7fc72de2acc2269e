// File: transport/connect.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection establishment. A pool connect is all-or-nothing: every
// physical channel must come up and the handshake must succeed before
// the caller ever sees a NodeChannels; any failure closes whatever was
// opened and reports exactly one error.

package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/nodewire/api"
	"github.com/momentics/nodewire/version"
)

// countDown counts n events and lets exactly one caller observe the
// transition to zero. FastForward short-circuits the count for failure
// paths; its single winner is the one that reports the error.
type countDown struct {
	remaining atomic.Int32
}

func newCountDown(n int32) *countDown {
	c := &countDown{}
	c.remaining.Store(n)
	return c
}

// CountDown decrements and reports whether this call took the count to
// zero.
func (c *countDown) CountDown() bool {
	for {
		cur := c.remaining.Load()
		if cur <= 0 {
			return false
		}
		if c.remaining.CompareAndSwap(cur, cur-1) {
			return cur == 1
		}
	}
}

// FastForward zeroes the count; true for the single winner.
func (c *countDown) FastForward() bool {
	for {
		cur := c.remaining.Load()
		if cur <= 0 {
			return false
		}
		if c.remaining.CompareAndSwap(cur, 0) {
			return true
		}
	}
}

// connectAttempt tracks one in-flight pool connect.
type connectAttempt struct {
	t       *Transport
	addr    string
	profile *Profile
	done    func(*NodeChannels, error)

	// countdown is armed to numChannels+1: one count per channel connect
	// callback plus one owned by the dial loop itself, so the handshake
	// cannot start while dials are still being issued even if every
	// callback fires synchronously.
	countdown *countDown
	timer     *time.Timer

	// mu guards channels and dead: a failure may sweep while the dial
	// loop is still appending, and channels dialed after the sweep must
	// be closed too or the attempt leaks live sockets.
	mu       sync.Mutex
	dead     bool
	channels []api.Channel
}

func (at *connectAttempt) addChannel(ch api.Channel) {
	at.mu.Lock()
	if at.dead {
		at.mu.Unlock()
		ch.Close()
		return
	}
	at.channels = append(at.channels, ch)
	at.mu.Unlock()
}

func (at *connectAttempt) closeChannels() {
	at.mu.Lock()
	at.dead = true
	channels := at.channels
	at.channels = nil
	at.mu.Unlock()
	for _, ch := range channels {
		ch.Close()
	}
}

// OpenConnection dials every channel the profile asks for, handshakes
// on the first one and hands the finished pool to done. done is invoked
// exactly once, from a transport goroutine, with either a pool or an
// error, never both.
func (t *Transport) OpenConnection(addr string, profile *Profile, done func(*NodeChannels, error)) {
	t.closeLock.RLock()
	defer t.closeLock.RUnlock()
	if t.closed.Load() {
		done(nil, ErrTransportStopped)
		return
	}
	if profile == nil || profile.NumChannels() == 0 {
		done(nil, fmt.Errorf("open connection to [%s]: profile has no channels", addr))
		return
	}

	at := &connectAttempt{
		t:         t,
		addr:      addr,
		profile:   profile,
		done:      done,
		countdown: newCountDown(int32(profile.NumChannels()) + 1),
	}
	if profile.ConnectTimeout > 0 {
		at.timer = time.AfterFunc(profile.ConnectTimeout, func() {
			at.fail(&ConnectError{Addr: addr, Err: fmt.Errorf("%w after %s", ErrConnectTimeout, profile.ConnectTimeout)})
		})
	}

	for i := 0; i < profile.NumChannels(); i++ {
		ch, err := t.factory.Dial(addr, func(err error) {
			if err != nil {
				at.fail(&ConnectError{Addr: addr, Err: err})
				return
			}
			if at.countdown.CountDown() {
				at.handshake()
			}
		})
		if err != nil {
			at.fail(&ConnectError{Addr: addr, Err: err})
			return
		}
		at.addChannel(ch)
		ch.AddCloseListener(func() {
			at.fail(&ConnectError{Addr: addr, Err: &NodeNotConnectedError{Addr: addr, Reason: "channel closed while connecting"}})
		})
	}

	// Release the dial loop's own count.
	if at.countdown.CountDown() {
		at.handshake()
	}
}

// fail claims the single failure slot, closes everything opened so far
// and reports err. Losers return silently.
func (at *connectAttempt) fail(err error) {
	if !at.countdown.FastForward() {
		return
	}
	if at.timer != nil {
		at.timer.Stop()
	}
	at.closeChannels()
	at.t.log.Debug().Err(err).Str("remote", at.addr).Msg("connection attempt failed")
	at.done(nil, err)
}

func (at *connectAttempt) members() []api.Channel {
	at.mu.Lock()
	defer at.mu.Unlock()
	return at.channels
}

// handshake runs once, after every channel connected.
func (at *connectAttempt) handshake() {
	ch := at.members()[0]
	requestID := at.t.responseHandlers.NewRequestID()
	at.t.handshaker.sendHandshake(requestID, ch, at.profile.HandshakeTimeout, func(negotiated version.ID, err error) {
		if err != nil {
			if at.timer != nil {
				at.timer.Stop()
			}
			at.closeChannels()
			at.done(nil, &ConnectError{Addr: at.addr, Err: err})
			return
		}
		at.finish(negotiated)
	})
}

func (at *connectAttempt) finish(negotiated version.ID) {
	if at.timer != nil {
		at.timer.Stop()
	}
	channels := at.members()
	nc := newNodeChannels(at.t, at.addr, channels, at.profile, negotiated)
	for _, ch := range channels {
		ch.AddCloseListener(func() { nc.Close() })
	}
	at.t.keepAlive.register(channels, at.profile.PingInterval)
	at.t.log.Info().Str("remote", at.addr).Int("channels", len(channels)).
		Int32("version", int32(negotiated)).Msg("connected")
	at.done(nc, nil)
}
