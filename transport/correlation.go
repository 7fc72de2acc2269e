// File: transport/correlation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Response correlation: request IDs and the pending-response table.
// Resolution is a sharded remove-and-return, so for any request ID
// exactly one of "response arrived" and "connection-close cleanup"
// obtains the handler; the loser gets nil and backs off.

package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/nodewire/api"
)

const pendingShards = 16

// PendingResponse is one outstanding request awaiting its terminal
// outcome.
type PendingResponse struct {
	Handler api.ResponseHandler
	Action  string
	Channel api.Channel
	SentAt  time.Time
}

type pendingShard struct {
	mu sync.Mutex
	m  map[int64]*PendingResponse
}

// ResponseHandlers owns the request-ID sequence and the pending table
// for one transport instance. IDs are monotonically increasing and
// never reused for the lifetime of the instance.
type ResponseHandlers struct {
	seq    atomic.Int64
	shards [pendingShards]pendingShard
}

// NewResponseHandlers creates an empty registry.
func NewResponseHandlers() *ResponseHandlers {
	rh := &ResponseHandlers{}
	for i := range rh.shards {
		rh.shards[i].m = make(map[int64]*PendingResponse)
	}
	return rh
}

func (rh *ResponseHandlers) shard(id int64) *pendingShard {
	return &rh.shards[id&(pendingShards-1)]
}

// NewRequestID returns the next request ID.
func (rh *ResponseHandlers) NewRequestID() int64 {
	return rh.seq.Add(1)
}

// Register records a pending response under id.
func (rh *ResponseHandlers) Register(id int64, p *PendingResponse) {
	s := rh.shard(id)
	s.mu.Lock()
	s.m[id] = p
	s.mu.Unlock()
}

// Resolve removes and returns the pending entry for id, or nil when the
// id is unknown or already resolved. A nil result makes duplicate or
// late frames a safe no-op.
func (rh *ResponseHandlers) Resolve(id int64) *PendingResponse {
	s := rh.shard(id)
	s.mu.Lock()
	p := s.m[id]
	if p != nil {
		delete(s.m, id)
	}
	s.mu.Unlock()
	return p
}

// RemoveAll removes and returns every pending entry matching pred. Used
// on connection close to synthesize failures for requests that can no
// longer be answered.
func (rh *ResponseHandlers) RemoveAll(pred func(*PendingResponse) bool) []*PendingResponse {
	var removed []*PendingResponse
	for i := range rh.shards {
		s := &rh.shards[i]
		s.mu.Lock()
		for id, p := range s.m {
			if pred(p) {
				removed = append(removed, p)
				delete(s.m, id)
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of pending entries.
func (rh *ResponseHandlers) Len() int {
	n := 0
	for i := range rh.shards {
		s := &rh.shards[i]
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}
