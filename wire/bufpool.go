// File: wire/bufpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wire

import "sync"

// BufPool recycles fixed-size read buffers for channel read loops.
type BufPool struct {
	size int
	pool sync.Pool
}

// NewBufPool creates a pool handing out buffers of size bytes.
func NewBufPool(size int) *BufPool {
	p := &BufPool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Get returns a buffer of the pool's size.
func (p *BufPool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

// Put returns a buffer for reuse. Buffers of a foreign size are dropped.
func (p *BufPool) Put(b []byte) {
	if cap(b) != p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
