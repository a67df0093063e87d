package order

import (
	"sync"
	"time"
)

// DefaultLockTTL is how long a local optimistic write shields an order from
// incoming updates before the lock self-releases.
const DefaultLockTTL = 3 * time.Second

type lockEntry struct {
	acquiredAt    time.Time
	autoReleaseAt time.Time
}

// LockTable tracks short-lived per-order locks set by local status changes.
// Expiry is evaluated lazily at read time; there is no background sweep and
// nothing persists across restarts.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

func NewLockTable() *LockTable {
	return &LockTable{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

// Acquire inserts or overwrites the lock for orderID with the given TTL.
func (t *LockTable) Acquire(orderID string, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.locks[orderID] = lockEntry{
		acquiredAt:    now,
		autoReleaseAt: now.Add(ttl),
	}
}

// IsLocked reports whether orderID is locked. An expired entry is removed
// on observation.
func (t *LockTable) IsLocked(orderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.locks[orderID]
	if !ok {
		return false
	}
	if !t.now().Before(entry.autoReleaseAt) {
		delete(t.locks, orderID)
		return false
	}
	return true
}

// Release removes the lock for orderID, if any.
func (t *LockTable) Release(orderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, orderID)
}

// Len returns the number of entries, including not-yet-collected expired ones.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
