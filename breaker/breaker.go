// File: breaker/breaker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Default in-flight memory breaker: a single atomic byte counter with a
// hard limit. The engine charges a frame's length before dispatching a
// request and the responder context releases the charge exactly once
// when the exchange terminates.

package breaker

import (
	"fmt"
	"sync/atomic"
)

// LimitError reports a charge that would exceed the breaker limit.
type LimitError struct {
	Label  string
	Wanted int64
	Used   int64
	Limit  int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("in-flight data circuit breaker tripped on [%s]: wanted %d, used %d, limit %d",
		e.Label, e.Wanted, e.Used, e.Limit)
}

// InFlight implements api.MemoryBreaker with a fixed byte limit.
type InFlight struct {
	limit   int64
	used    atomic.Int64
	tripped atomic.Int64
}

// NewInFlight creates a breaker. limit <= 0 means unlimited.
func NewInFlight(limit int64) *InFlight {
	return &InFlight{limit: limit}
}

// Charge reserves n bytes or returns *LimitError when the reservation
// would exceed the limit. A rejected charge leaves the counter as it
// was.
func (b *InFlight) Charge(n int64, label string) error {
	used := b.used.Add(n)
	if b.limit > 0 && used > b.limit {
		b.used.Add(-n)
		b.tripped.Add(1)
		return &LimitError{Label: label, Wanted: n, Used: used - n, Limit: b.limit}
	}
	return nil
}

// ChargeWithoutLimit reserves n bytes unconditionally.
func (b *InFlight) ChargeWithoutLimit(n int64) {
	b.used.Add(n)
}

// Release returns n previously charged bytes.
func (b *InFlight) Release(n int64) {
	b.used.Add(-n)
}

// Used returns the bytes currently accounted.
func (b *InFlight) Used() int64 { return b.used.Load() }

// Tripped returns how many charges were rejected.
func (b *InFlight) Tripped() int64 { return b.tripped.Load() }

// Limit returns the configured limit.
func (b *InFlight) Limit() int64 { return b.limit }
