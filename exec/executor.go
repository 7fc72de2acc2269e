// File: exec/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pool dispatches handler work across worker goroutines. Regular
// submissions go through a bounded queue and are rejected when it is
// full; forced submissions land in an unbounded overflow ring and are
// never rejected. Workers drain the overflow ring before the bounded
// queue so forced work cannot starve behind a saturated channel.

package exec

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

var (
	// ErrPoolClosed indicates the pool has been shut down.
	ErrPoolClosed = errors.New("executor pool is closed")

	// ErrQueueFull indicates the bounded queue rejected a task.
	ErrQueueFull = errors.New("executor queue is full")
)

// Pool is a fixed-size worker pool implementing api.Executor.
type Pool struct {
	tasks chan func()

	overflowMu sync.Mutex
	overflow   *queue.Queue

	wake   chan struct{}
	quit   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewPool creates a pool with workers goroutines and a bounded queue of
// depth slots. workers <= 0 selects NumCPU.
func NewPool(workers, depth int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if depth <= 0 {
		depth = workers * 16
	}
	p := &Pool{
		tasks:    make(chan func(), depth),
		overflow: queue.New(),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit schedules fn. Returns ErrQueueFull when the bounded queue is
// saturated and ErrPoolClosed after Close.
func (p *Pool) Submit(fn func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitForced schedules fn unconditionally. After Close the task runs
// inline on the caller so terminal callbacks are still delivered.
func (p *Pool) SubmitForced(fn func()) {
	if p.closed.Load() {
		fn()
		return
	}
	p.overflowMu.Lock()
	p.overflow.Add(fn)
	p.overflowMu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) popOverflow() (func(), bool) {
	p.overflowMu.Lock()
	defer p.overflowMu.Unlock()
	if p.overflow.Length() == 0 {
		return nil, false
	}
	fn := p.overflow.Remove().(func())
	return fn, true
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		if fn, ok := p.popOverflow(); ok {
			runTask(fn)
			continue
		}
		select {
		case fn := <-p.tasks:
			runTask(fn)
		case <-p.wake:
		case <-p.quit:
			// Drain what is left so no terminal callback is lost.
			for {
				if fn, ok := p.popOverflow(); ok {
					runTask(fn)
					continue
				}
				select {
				case fn := <-p.tasks:
					runTask(fn)
				default:
					return
				}
			}
		}
	}
}

func runTask(fn func()) {
	defer func() { recover() }()
	fn()
}

// Close stops the pool after draining queued work. Idempotent.
func (p *Pool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.quit)
		p.wg.Wait()
	}
}
