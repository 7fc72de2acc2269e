// File: transport/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NodeChannels is one logical connection to a peer: the full set of
// physical channels plus the negotiated version. All-or-nothing by
// construction — it exists only after every channel connected and the
// handshake succeeded, and the first member channel to close takes the
// whole pool down with it.

package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/nodewire/api"
	"github.com/momentics/nodewire/version"
)

// RequestOptions select the lane an outbound request is pinned to.
// Requests that must stay ordered relative to each other should share a
// channel type; ordering across lanes is not guaranteed.
type RequestOptions struct {
	Type ChannelType
}

// poolLane is a profile handle bound to a concrete pool, with its own
// round-robin cursor.
type poolLane struct {
	offset  int
	length  int
	counter atomic.Uint32
}

func (l *poolLane) pick(channels []api.Channel) api.Channel {
	// Modulo in uint32 space: converting the counter first would go
	// negative on 32-bit platforms once it wraps past MaxInt32.
	idx := l.offset + int((l.counter.Add(1)-1)%uint32(l.length))
	return channels[idx]
}

// NodeChannels is a connected pool. Channel membership is immutable;
// the only mutation is the one-shot transition into closing.
type NodeChannels struct {
	t        *Transport
	addr     string
	channels []api.Channel
	lanes    map[ChannelType]*poolLane
	version  version.ID
	compress bool

	closing atomic.Bool

	listenersMu    sync.Mutex
	closeListeners []func()
}

func newNodeChannels(t *Transport, addr string, channels []api.Channel, profile *Profile, negotiated version.ID) *NodeChannels {
	nc := &NodeChannels{
		t:        t,
		addr:     addr,
		channels: channels,
		lanes:    make(map[ChannelType]*poolLane, numChannelTypes),
		version:  negotiated,
		compress: profile.Compress,
	}
	for i := range profile.handles {
		h := &profile.handles[i]
		lane := &poolLane{offset: h.offset, length: h.length}
		for _, typ := range h.types {
			nc.lanes[typ] = lane
		}
	}
	return nc
}

// Version returns the negotiated wire version used for all traffic on
// this pool.
func (nc *NodeChannels) Version() version.ID { return nc.version }

// RemoteAddr returns the peer address this pool is connected to.
func (nc *NodeChannels) RemoteAddr() string { return nc.addr }

// Channels returns the pool's physical channels.
func (nc *NodeChannels) Channels() []api.Channel { return nc.channels }

// Channel resolves a traffic class to one physical channel. The
// resolution is deterministic per lane (round-robin within the lane's
// block); channel identity is not stable across reconnects.
func (nc *NodeChannels) Channel(typ ChannelType) (api.Channel, error) {
	lane, ok := nc.lanes[typ]
	if !ok {
		return nil, fmt.Errorf("no channel type configured for [%s]", typ)
	}
	return lane.pick(nc.channels), nil
}

// SendRequest serializes and sends a request on the lane selected by
// opts, registering handler for the response. It returns the request ID
// on success. While the pool is closing every send is rejected with
// NodeNotConnectedError rather than silently dropped.
func (nc *NodeChannels) SendRequest(action string, payload []byte, opts RequestOptions, handler api.ResponseHandler) (int64, error) {
	if nc.closing.Load() {
		return 0, &NodeNotConnectedError{Addr: nc.addr, Reason: "connection already closed"}
	}
	ch, err := nc.Channel(opts.Type)
	if err != nil {
		return 0, err
	}
	id := nc.t.responseHandlers.NewRequestID()
	nc.t.responseHandlers.Register(id, &PendingResponse{
		Handler: handler,
		Action:  action,
		Channel: ch,
		SentAt:  time.Now(),
	})
	// Re-check after registering: Close may have swept the registry
	// between the first check and Register, in which case this entry
	// would never be resolved. Whoever removes the entry owns the
	// terminal outcome, so a nil Resolve here means the sweep already
	// delivered the disconnect failure to the handler.
	if nc.closing.Load() {
		if nc.t.responseHandlers.Resolve(id) != nil {
			return 0, &NodeNotConnectedError{Addr: nc.addr, Reason: "connection already closed"}
		}
		return id, nil
	}
	if err := nc.t.sendRequestToChannel(ch, id, action, payload, nc.version, nc.compress, 0); err != nil {
		// Serialization failed before anything hit the wire; the pending
		// entry must not leak.
		nc.t.responseHandlers.Resolve(id)
		return 0, err
	}
	return id, nil
}

// AddCloseListener registers fn to run once when the pool closes. If
// the pool is already closed fn runs immediately.
func (nc *NodeChannels) AddCloseListener(fn func()) {
	if nc.closing.Load() {
		fn()
		return
	}
	nc.listenersMu.Lock()
	closed := nc.closing.Load()
	if !closed {
		nc.closeListeners = append(nc.closeListeners, fn)
	}
	nc.listenersMu.Unlock()
	if closed {
		fn()
	}
}

// Close tears the pool down: closes every member channel, synthesizes a
// disconnect failure for every request still pending on them, and fires
// close listeners. Idempotent.
func (nc *NodeChannels) Close() error {
	if !nc.closing.CompareAndSwap(false, true) {
		return nil
	}
	members := make(map[api.Channel]struct{}, len(nc.channels))
	for _, ch := range nc.channels {
		members[ch] = struct{}{}
		ch.Close()
	}
	nc.t.failPendingOnChannels(members, &NodeNotConnectedError{Addr: nc.addr, Reason: "connection closed"})

	nc.listenersMu.Lock()
	listeners := nc.closeListeners
	nc.closeListeners = nil
	nc.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
	return nil
}
