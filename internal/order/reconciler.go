package order

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
	"github.com/quickserveclub/quickserve/pkg/enums/orderstatus"
	"github.com/quickserveclub/quickserve/pkg/event"
)

// MaxOrders caps the canonical list for memory and display bounds. Eviction
// is oldest-first by timestamp.
const MaxOrders = 200

const mutationTimeout = 10 * time.Second

// Reconciler owns the canonical in-memory order list, the high-watermark
// timestamp and the admission rules for the three feeding sources (snapshot,
// push stream, poller). All other components only propose changes; only the
// reconciler commits them.
type Reconciler struct {
	mu        sync.RWMutex
	orders    []*Order // newest first
	index     map[string]*Order
	watermark time.Time
	scope     Scope

	locks     *LockTable
	lockTTL   time.Duration
	source    OrderSource
	snapshots SnapshotStore
	stream    events.StreamConsumer // replay fallback when the store is unreachable
	logger    aqm.Logger
}

func NewReconciler(source OrderSource, snapshots SnapshotStore, stream events.StreamConsumer, logger aqm.Logger) *Reconciler {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &Reconciler{
		orders:    make([]*Order, 0),
		index:     make(map[string]*Order),
		locks:     NewLockTable(),
		lockTTL:   DefaultLockTTL,
		source:    source,
		snapshots: snapshots,
		stream:    stream,
		logger:    logger,
	}
}

// SetScope pins the reconciler to a role/venue/location. The canonical list,
// watermark and lock table are reset; callers re-warm and re-subscribe after.
func (r *Reconciler) SetScope(scope Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scope = scope
	r.orders = make([]*Order, 0)
	r.index = make(map[string]*Order)
	r.watermark = time.Time{}
	r.locks = NewLockTable()
}

func (r *Reconciler) Scope() Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scope
}

// Warm loads the persisted snapshot for an instant first render, then pulls
// a full refresh from the backing store. If the store is unreachable it
// falls back to event replay from the stream when one is configured.
func (r *Reconciler) Warm(ctx context.Context) error {
	if r.snapshots != nil {
		if orders, err := r.snapshots.LoadOrders(ctx); err != nil {
			r.logger.Info("snapshot load failed, starting empty", "error", err)
		} else if len(orders) > 0 {
			r.installSnapshot(orders)
			r.logger.Info("warmed from snapshot", "count", len(orders))
		}
	}

	if r.source == nil {
		return nil
	}

	orders, err := r.source.FullRefresh(ctx, r.Scope())
	if err != nil {
		r.logger.Info("full refresh failed during warm-up", "error", err)
		if r.stream != nil {
			return r.warmFromStream(ctx)
		}
		return nil
	}
	if orders != nil {
		r.FullRefresh(ctx, orders)
	}
	return nil
}

// installSnapshot seeds the canonical list without persisting it back.
func (r *Reconciler) installSnapshot(orders []Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders = make([]*Order, 0, len(orders))
	r.index = make(map[string]*Order, len(orders))
	for i := range orders {
		o := orders[i]
		if _, exists := r.index[o.ID]; exists {
			continue
		}
		r.orders = append(r.orders, &o)
		r.index[o.ID] = &o
		if o.Timestamp.After(r.watermark) {
			r.watermark = o.Timestamp
		}
	}
	r.sortLocked()
	r.capLocked()
}

// warmFromStream replays order events from the persistent stream.
func (r *Reconciler) warmFromStream(ctx context.Context) error {
	r.logger.Info("warming from event stream")

	messages, err := r.stream.Fetch(ctx, 10000)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		var evt event.OrderEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			r.logger.Error("failed to unmarshal replayed event", "error", err)
			continue
		}
		switch evt.EventType {
		case event.EventOrderCreated:
			r.AdmitInsert(ctx, FromRecord(evt.Order))
		case event.EventOrderUpdated:
			r.AdmitUpdate(ctx, FromRecord(evt.Order))
		default:
			// Unknown event types are ignored (forward compatibility).
		}
	}

	r.logger.Info("warmed from stream", "orders", r.Count())
	return nil
}

// ApplyLocalStatusChange writes a user action into the canonical list before
// the backing store confirms it. The order is locked against incoming
// updates unless the new status is ongoing: an accept is routinely followed
// by a print/confirm step that must still receive the authoritative echo.
// The mutation is forwarded fire-and-forget; failure is logged, never rolled
// back locally.
func (r *Reconciler) ApplyLocalStatusChange(ctx context.Context, orderID, status, reason, note string) error {
	r.mu.Lock()
	o, ok := r.index[orderID]
	if !ok {
		r.mu.Unlock()
		return ErrOrderNotFound
	}

	o.Status = status
	o.RejectionReason = reason
	o.RejectionNote = note

	if status != orderstatus.Statuses.Ongoing.Code() {
		r.locks.Acquire(orderID, r.lockTTL)
	}

	r.persistLocked(ctx)
	r.mu.Unlock()

	if r.source == nil {
		return nil
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()
		if err := r.source.SendStatusMutation(sendCtx, orderID, status, reason, note); err != nil {
			r.logger.Error("status mutation failed, keeping optimistic state", "order_id", orderID, "status", status, "error", err)
		}
	}()

	return nil
}

// AdmitInsert proposes a new order. Duplicate ids are rejected so repeated
// delivery stays idempotent.
func (r *Reconciler) AdmitInsert(ctx context.Context, candidate *Order) bool {
	if candidate == nil || candidate.ID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[candidate.ID]; exists {
		return false
	}

	r.orders = append([]*Order{candidate}, r.orders...)
	r.index[candidate.ID] = candidate
	r.capLocked()

	if candidate.Timestamp.After(r.watermark) {
		r.watermark = candidate.Timestamp
	}

	r.persistLocked(ctx)
	return true
}

// AdmitUpdate proposes a mutation of an existing order. Updates never
// create. While the order is locked: a proposed ongoing status is rejected
// outright (the printing-flow carve-out); a status equal to the local one is
// the confirmation, which releases the lock and applies the remaining
// fields; anything else is stale or premature and is rejected.
func (r *Reconciler) AdmitUpdate(ctx context.Context, candidate *Order) bool {
	if candidate == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.index[candidate.ID]
	if !ok {
		return false
	}

	if r.locks.IsLocked(candidate.ID) {
		if candidate.Status == orderstatus.Statuses.Ongoing.Code() {
			return false
		}
		if candidate.Status != existing.Status {
			return false
		}
		r.locks.Release(candidate.ID)
	}

	applyUpdate(existing, candidate)
	r.persistLocked(ctx)
	return true
}

// FullRefresh reconciles the authoritative list from the periodic or initial
// fetch. Locked orders keep their locally held status while taking every
// non-status field from the store.
func (r *Reconciler) FullRefresh(ctx context.Context, orders []Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]*Order, 0, len(orders))
	nextIndex := make(map[string]*Order, len(orders))

	for i := range orders {
		o := orders[i]
		if _, dup := nextIndex[o.ID]; dup {
			continue
		}
		if existing, ok := r.index[o.ID]; ok && r.locks.IsLocked(o.ID) {
			o.Status = existing.Status
		}
		next = append(next, &o)
		nextIndex[o.ID] = &o
	}

	r.orders = next
	r.index = nextIndex
	r.sortLocked()
	r.capLocked()

	for _, o := range r.orders {
		if o.Timestamp.After(r.watermark) {
			r.watermark = o.Timestamp
		}
	}

	r.persistLocked(ctx)
}

// Get returns a copy of the order with the given id, or nil.
func (r *Reconciler) Get(orderID string) *Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index[orderID].Clone()
}

// Orders returns a copy of the canonical list, newest first.
func (r *Reconciler) Orders() []Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		result = append(result, *o.Clone())
	}
	return result
}

// OrdersByStatus returns copies of orders with the given status, newest first.
func (r *Reconciler) OrdersByStatus(status string) []Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Order, 0)
	for _, o := range r.orders {
		if o.Status == status {
			result = append(result, *o.Clone())
		}
	}
	return result
}

func (r *Reconciler) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

func (r *Reconciler) Watermark() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.watermark
}

// applyUpdate copies the mutable fields of candidate into existing. The
// creation timestamp and id are immutable; empty scoping fields on the
// candidate leave the existing values alone.
func applyUpdate(existing, candidate *Order) {
	existing.Status = candidate.Status
	existing.Remark = candidate.Remark
	existing.RejectionReason = candidate.RejectionReason
	existing.RejectionNote = candidate.RejectionNote
	if len(candidate.Items) > 0 {
		existing.Items = candidate.Items
	}
	if candidate.Total != 0 {
		existing.Total = candidate.Total
	}
	if candidate.TableNumber != "" {
		existing.TableNumber = candidate.TableNumber
	}
	if candidate.LocationName != "" {
		existing.LocationName = candidate.LocationName
	}
	if candidate.CustomerID != "" {
		existing.CustomerID = candidate.CustomerID
	}
}

// sortLocked keeps the canonical list newest first. Must hold r.mu.
func (r *Reconciler) sortLocked() {
	sort.SliceStable(r.orders, func(i, j int) bool {
		return r.orders[i].Timestamp.After(r.orders[j].Timestamp)
	})
}

// capLocked evicts the oldest entries past MaxOrders. Must hold r.mu.
func (r *Reconciler) capLocked() {
	for len(r.orders) > MaxOrders {
		oldest := 0
		for i := 1; i < len(r.orders); i++ {
			if r.orders[i].Timestamp.Before(r.orders[oldest].Timestamp) {
				oldest = i
			}
		}
		evicted := r.orders[oldest]
		r.orders = append(r.orders[:oldest], r.orders[oldest+1:]...)
		delete(r.index, evicted.ID)
	}
}

// persistLocked writes the canonical list to the snapshot store. Failures
// are logged only; the in-memory view is the working copy. Must hold r.mu.
func (r *Reconciler) persistLocked(ctx context.Context) {
	if r.snapshots == nil {
		return
	}
	list := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		list = append(list, *o)
	}
	if err := r.snapshots.SaveOrders(ctx, list); err != nil {
		r.logger.Error("failed to persist order snapshot", "error", err)
	}
}
