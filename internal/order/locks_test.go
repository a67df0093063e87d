package order

import (
	"testing"
	"time"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestLockTableAcquireAndIsLocked(t *testing.T) {
	clock := newFakeClock()
	table := NewLockTable()
	table.now = clock.Now

	table.Acquire("QS0000001", DefaultLockTTL)

	if !table.IsLocked("QS0000001") {
		t.Error("IsLocked() = false immediately after Acquire()")
	}
	if table.IsLocked("QS0000002") {
		t.Error("IsLocked() = true for an order never locked")
	}
}

func TestLockTableLazyExpiry(t *testing.T) {
	clock := newFakeClock()
	table := NewLockTable()
	table.now = clock.Now

	table.Acquire("QS0000001", DefaultLockTTL)

	clock.Advance(DefaultLockTTL - time.Millisecond)
	if !table.IsLocked("QS0000001") {
		t.Error("IsLocked() = false just before the TTL elapsed")
	}

	clock.Advance(time.Millisecond)
	if table.IsLocked("QS0000001") {
		t.Error("IsLocked() = true after the TTL elapsed")
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after lazy expiry collected the entry", table.Len())
	}
}

func TestLockTableRelease(t *testing.T) {
	table := NewLockTable()
	table.Acquire("QS0000001", time.Hour)

	table.Release("QS0000001")

	if table.IsLocked("QS0000001") {
		t.Error("IsLocked() = true after Release()")
	}
}

func TestLockTableReacquireExtends(t *testing.T) {
	clock := newFakeClock()
	table := NewLockTable()
	table.now = clock.Now

	table.Acquire("QS0000001", DefaultLockTTL)
	clock.Advance(2 * time.Second)
	table.Acquire("QS0000001", DefaultLockTTL)
	clock.Advance(2 * time.Second)

	if !table.IsLocked("QS0000001") {
		t.Error("IsLocked() = false, re-acquire should have extended the deadline")
	}
}

func TestLockTableReleaseUnknownOrder(t *testing.T) {
	table := NewLockTable()

	// Should not panic.
	table.Release("QS0000001")
}
