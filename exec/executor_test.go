// File: exec/executor_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package exec

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestPool_SubmitRuns executes submitted tasks on worker goroutines.
func TestPool_SubmitRuns(t *testing.T) {
	p := NewPool(2, 8)
	defer p.Close()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		for {
			err := p.Submit(func() {
				n.Add(1)
				wg.Done()
			})
			if err == nil {
				break
			}
			if !errors.Is(err, ErrQueueFull) {
				t.Fatalf("Submit: %v", err)
			}
			time.Sleep(time.Millisecond)
		}
	}
	wg.Wait()
	if n.Load() != 20 {
		t.Errorf("ran %d tasks, want 20", n.Load())
	}
}

// TestPool_SubmitRejectsWhenFull returns ErrQueueFull instead of
// blocking the caller.
func TestPool_SubmitRejectsWhenFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Close()

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	p.Submit(func() { defer wg.Done(); <-block })
	// Give the worker time to pick up the blocking task.
	time.Sleep(10 * time.Millisecond)

	saw := false
	for i := 0; i < 10; i++ {
		if err := p.Submit(func() {}); errors.Is(err, ErrQueueFull) {
			saw = true
			break
		}
	}
	close(block)
	wg.Wait()
	if !saw {
		t.Error("expected at least one ErrQueueFull")
	}
}

// TestPool_SubmitForcedNeverRejected runs forced tasks even while the
// bounded queue is saturated.
func TestPool_SubmitForcedNeverRejected(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Close()

	block := make(chan struct{})
	p.Submit(func() { <-block })
	time.Sleep(10 * time.Millisecond)
	for p.Submit(func() {}) == nil {
	}

	done := make(chan struct{})
	p.SubmitForced(func() { close(done) })
	close(block)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forced task never ran")
	}
}

// TestPool_ForcedAfterCloseRunsInline keeps terminal callbacks alive
// past shutdown.
func TestPool_ForcedAfterCloseRunsInline(t *testing.T) {
	p := NewPool(1, 1)
	p.Close()

	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after close: %v, want ErrPoolClosed", err)
	}
	ran := false
	p.SubmitForced(func() { ran = true })
	if !ran {
		t.Error("forced task did not run inline after close")
	}
}

// TestPool_CloseDrainsQueuedWork finishes already accepted tasks before
// Close returns.
func TestPool_CloseDrainsQueuedWork(t *testing.T) {
	p := NewPool(1, 64)
	var n atomic.Int32
	for i := 0; i < 32; i++ {
		p.Submit(func() { n.Add(1) })
	}
	p.Close()
	if n.Load() != 32 {
		t.Errorf("drained %d tasks, want 32", n.Load())
	}
}

// TestPool_TaskPanicDoesNotKillWorker keeps the pool serving after a
// panicking task.
func TestPool_TaskPanicDoesNotKillWorker(t *testing.T) {
	p := NewPool(1, 8)
	defer p.Close()

	p.SubmitForced(func() { panic("boom") })
	done := make(chan struct{})
	p.SubmitForced(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}
