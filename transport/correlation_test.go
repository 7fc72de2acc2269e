// File: transport/correlation_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"sync"
	"sync/atomic"
	"testing"
)

// TestResponseHandlers_ResolveExactlyOnce races two resolvers per id
// and checks exactly one wins for every entry.
func TestResponseHandlers_ResolveExactlyOnce(t *testing.T) {
	rh := NewResponseHandlers()
	const N = 2000
	ids := make([]int64, N)
	for i := range ids {
		id := rh.NewRequestID()
		ids[i] = id
		rh.Register(id, &PendingResponse{Action: "test"})
	}

	var wins atomic.Int64
	var wg sync.WaitGroup
	for _, id := range ids {
		for k := 0; k < 2; k++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				if rh.Resolve(id) != nil {
					wins.Add(1)
				}
			}(id)
		}
	}
	wg.Wait()
	if wins.Load() != N {
		t.Errorf("resolved %d entries, want exactly %d", wins.Load(), N)
	}
	if rh.Len() != 0 {
		t.Errorf("%d entries left, want 0", rh.Len())
	}
}

// TestResponseHandlers_ResolveUnknown is a safe no-op.
func TestResponseHandlers_ResolveUnknown(t *testing.T) {
	rh := NewResponseHandlers()
	if p := rh.Resolve(12345); p != nil {
		t.Errorf("resolved unknown id to %+v", p)
	}
}

// TestResponseHandlers_RequestIDsUnique checks the sequence never
// repeats under parallel allocation.
func TestResponseHandlers_RequestIDsUnique(t *testing.T) {
	rh := NewResponseHandlers()
	const N = 1000
	seen := make(chan int64, 4*N)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < N; i++ {
				seen <- rh.NewRequestID()
			}
		}()
	}
	wg.Wait()
	close(seen)
	got := make(map[int64]bool)
	for id := range seen {
		if got[id] {
			t.Fatalf("request id %d allocated twice", id)
		}
		got[id] = true
	}
}

// TestResponseHandlers_RemoveAllByChannel removes only entries bound to
// the given channels.
func TestResponseHandlers_RemoveAllByChannel(t *testing.T) {
	rh := NewResponseHandlers()
	a, b := NewPipePair("remove-all")
	for i := 0; i < 10; i++ {
		ch := a
		if i%2 == 1 {
			ch = b
		}
		rh.Register(rh.NewRequestID(), &PendingResponse{Channel: ch})
	}
	removed := rh.RemoveAll(func(p *PendingResponse) bool { return p.Channel == a })
	if len(removed) != 5 {
		t.Errorf("removed %d, want 5", len(removed))
	}
	if rh.Len() != 5 {
		t.Errorf("%d left, want 5", rh.Len())
	}
}
