// File: breaker/breaker_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package breaker

import (
	"errors"
	"sync"
	"testing"
)

// TestInFlight_ChargeRelease tracks the counter through a charge and
// release cycle.
func TestInFlight_ChargeRelease(t *testing.T) {
	b := NewInFlight(100)
	if err := b.Charge(60, "req"); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if b.Used() != 60 {
		t.Errorf("used %d, want 60", b.Used())
	}
	b.Release(60)
	if b.Used() != 0 {
		t.Errorf("used %d after release, want 0", b.Used())
	}
}

// TestInFlight_TripRollsBack rejects the charge and leaves the counter
// untouched so the rejected request costs nothing.
func TestInFlight_TripRollsBack(t *testing.T) {
	b := NewInFlight(100)
	if err := b.Charge(80, "first"); err != nil {
		t.Fatalf("Charge: %v", err)
	}
	err := b.Charge(40, "second")
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if le.Label != "second" || le.Wanted != 40 || le.Limit != 100 {
		t.Errorf("error fields: %+v", le)
	}
	if b.Used() != 80 {
		t.Errorf("used %d after trip, want 80", b.Used())
	}
	if b.Tripped() != 1 {
		t.Errorf("tripped %d, want 1", b.Tripped())
	}
}

// TestInFlight_ChargeWithoutLimit is accounted but never rejected.
func TestInFlight_ChargeWithoutLimit(t *testing.T) {
	b := NewInFlight(10)
	b.ChargeWithoutLimit(1000)
	if b.Used() != 1000 {
		t.Errorf("used %d, want 1000", b.Used())
	}
	if b.Tripped() != 0 {
		t.Errorf("tripped %d, want 0", b.Tripped())
	}
}

// TestInFlight_Unlimited treats limit <= 0 as no limit.
func TestInFlight_Unlimited(t *testing.T) {
	b := NewInFlight(0)
	if err := b.Charge(1 << 40, "huge"); err != nil {
		t.Fatalf("Charge on unlimited breaker: %v", err)
	}
}

// TestInFlight_ConcurrentBalance checks the counter returns to zero
// after many parallel charge/release pairs.
func TestInFlight_ConcurrentBalance(t *testing.T) {
	b := NewInFlight(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				b.ChargeWithoutLimit(7)
				b.Release(7)
			}
		}()
	}
	wg.Wait()
	if b.Used() != 0 {
		t.Errorf("used %d after balanced traffic, want 0", b.Used())
	}
}
