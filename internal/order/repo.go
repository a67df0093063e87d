package order

import (
	"context"
	"time"
)

// OrderSource is the backing-store surface the reconciler pulls from and
// pushes mutations to. Implementations must treat concurrent FullRefresh or
// DeltaSince calls as no-ops returning immediately with no rows.
type OrderSource interface {
	// FullRefresh returns the most recent orders for the scope, newest
	// first, bounded by the canonical list cap.
	FullRefresh(ctx context.Context, scope Scope) ([]Order, error)
	// DeltaSince returns orders with a timestamp strictly greater than the
	// watermark, newest first.
	DeltaSince(ctx context.Context, watermark time.Time, scope Scope) ([]Order, error)
	// SendStatusMutation writes a status change (and rejection annotations)
	// for one order.
	SendStatusMutation(ctx context.Context, orderID, status, reason, note string) error
	// PlaceOrder creates a new order record.
	PlaceOrder(ctx context.Context, o *Order) error
}

// SnapshotStore persists the last-known order list so the terminal can
// render before any network round-trip completes.
type SnapshotStore interface {
	SaveOrders(ctx context.Context, orders []Order) error
	LoadOrders(ctx context.Context) ([]Order, error)
}
