// File: transport/keepalive.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Keep-alive pings. One timer loop per distinct ping interval is shared
// across all pools using that interval. A channel is pinged only when
// nothing was written on it since the loop's previous tick; received
// pings are counted and consumed, never surfaced as messages.

package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/nodewire/api"
	"github.com/momentics/nodewire/wire"
)

type channelActivity struct {
	lastWrite atomic.Int64 // unix nanos of the last outbound write
}

type keepAlive struct {
	t *Transport

	mu       sync.Mutex
	loops    map[time.Duration]*pingLoop
	activity map[api.Channel]*channelActivity
	stopped  bool

	successfulPings atomic.Int64
	receivedPings   atomic.Int64
}

type pingLoop struct {
	ka       *keepAlive
	interval time.Duration

	mu       sync.Mutex
	channels map[api.Channel]struct{}

	quit chan struct{}
}

func newKeepAlive(t *Transport) *keepAlive {
	return &keepAlive{
		t:        t,
		loops:    make(map[time.Duration]*pingLoop),
		activity: make(map[api.Channel]*channelActivity),
	}
}

// register enrolls a pool's channels for pinging. A non-positive
// interval disables keep-alive for the pool. Channels deregister
// themselves when they close; a loop stops as soon as its last channel
// deregisters and never initiates connections.
func (ka *keepAlive) register(channels []api.Channel, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ka.mu.Lock()
	if ka.stopped {
		ka.mu.Unlock()
		return
	}
	loop, ok := ka.loops[interval]
	if !ok {
		loop = &pingLoop{
			ka:       ka,
			interval: interval,
			channels: make(map[api.Channel]struct{}),
			quit:     make(chan struct{}),
		}
		ka.loops[interval] = loop
		go loop.run()
	}
	now := time.Now().UnixNano()
	for _, ch := range channels {
		act := &channelActivity{}
		act.lastWrite.Store(now)
		ka.activity[ch] = act
	}
	// Membership changes nest loop.mu inside ka.mu so a concurrent
	// deregister cannot retire the loop between the lookup above and the
	// inserts here.
	loop.mu.Lock()
	for _, ch := range channels {
		loop.channels[ch] = struct{}{}
	}
	loop.mu.Unlock()
	ka.mu.Unlock()

	for _, ch := range channels {
		ch := ch
		ch.AddCloseListener(func() { ka.deregister(loop, ch) })
	}
}

// deregister drops ch from its loop and retires the loop once its last
// channel is gone.
func (ka *keepAlive) deregister(loop *pingLoop, ch api.Channel) {
	ka.mu.Lock()
	delete(ka.activity, ch)
	loop.mu.Lock()
	delete(loop.channels, ch)
	empty := len(loop.channels) == 0
	loop.mu.Unlock()
	if empty && !ka.stopped && ka.loops[loop.interval] == loop {
		delete(ka.loops, loop.interval)
		close(loop.quit)
	}
	ka.mu.Unlock()
}

// markAccessed records an outbound write; called from the send path so
// busy channels are never pinged.
func (ka *keepAlive) markAccessed(ch api.Channel) {
	ka.mu.Lock()
	act := ka.activity[ch]
	ka.mu.Unlock()
	if act != nil {
		act.lastWrite.Store(time.Now().UnixNano())
	}
}

// receive consumes an inbound ping.
func (ka *keepAlive) receive(ch api.Channel) {
	ka.receivedPings.Add(1)
}

// stop cancels every loop.
func (ka *keepAlive) stop() {
	ka.mu.Lock()
	if ka.stopped {
		ka.mu.Unlock()
		return
	}
	ka.stopped = true
	loops := ka.loops
	ka.loops = make(map[time.Duration]*pingLoop)
	ka.mu.Unlock()
	for _, loop := range loops {
		close(loop.quit)
	}
}

func (l *pingLoop) run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.quit:
			return
		case now := <-ticker.C:
			l.pingIdle(now)
		}
	}
}

func (l *pingLoop) pingIdle(now time.Time) {
	l.mu.Lock()
	channels := make([]api.Channel, 0, len(l.channels))
	for ch := range l.channels {
		channels = append(channels, ch)
	}
	l.mu.Unlock()

	cutoff := now.Add(-l.interval).UnixNano()
	for _, ch := range channels {
		l.ka.mu.Lock()
		act := l.ka.activity[ch]
		l.ka.mu.Unlock()
		if act == nil || act.lastWrite.Load() > cutoff {
			continue
		}
		if !ch.IsOpen() {
			continue
		}
		ka := l.ka
		ka.t.internalSend(ch, wire.PingBytes(), func(err error) {
			if err == nil {
				ka.successfulPings.Add(1)
			}
			// A failed ping already closed the channel via the regular
			// write-failure path; nothing more to do here.
		})
	}
}
