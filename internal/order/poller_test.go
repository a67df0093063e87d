package order

import (
	"context"
	"testing"
	"time"

	"github.com/aquamarinepk/aqm"
)

func TestPollerAdmitsDeltaResults(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	source := NewMockOrderSource()
	source.DeltaSinceFunc = func(ctx context.Context, watermark time.Time, scope Scope) ([]Order, error) {
		return []Order{*makeOrder("QS0000002", "pending", base.Add(time.Minute))}, nil
	}

	rec, _ := newTestReconciler(source)
	rec.AdmitInsert(context.Background(), makeOrder("QS0000001", "pending", base))

	poller := NewPoller(rec, source, aqm.NewNoopLogger())
	poller.interval = 10 * time.Millisecond

	if err := poller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer poller.Stop(context.Background())

	deadline := time.Now().Add(time.Second)
	for rec.Get("QS0000002") == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if rec.Get("QS0000002") == nil {
		t.Fatal("delta result never admitted")
	}
	if rec.Watermark() != base.Add(time.Minute) {
		t.Errorf("Watermark() = %v, want %v", rec.Watermark(), base.Add(time.Minute))
	}
}

func TestPollerDemotesKnownIdsToUpdates(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	source := NewMockOrderSource()
	source.DeltaSinceFunc = func(ctx context.Context, watermark time.Time, scope Scope) ([]Order, error) {
		return []Order{*makeOrder("QS0000001", "ongoing", base)}, nil
	}

	rec, _ := newTestReconciler(source)
	rec.AdmitInsert(context.Background(), makeOrder("QS0000001", "pending", base))

	poller := NewPoller(rec, source, aqm.NewNoopLogger())
	poller.interval = 10 * time.Millisecond

	if err := poller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer poller.Stop(context.Background())

	deadline := time.Now().Add(time.Second)
	for rec.Get("QS0000001").Status != "ongoing" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if got := rec.Get("QS0000001").Status; got != "ongoing" {
		t.Errorf("status = %s, want ongoing via demoted update", got)
	}
	if rec.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (no duplicate from the delta row)", rec.Count())
	}
}

func TestPollerDisabledForCustomerRole(t *testing.T) {
	source := NewMockOrderSource()
	rec := NewReconciler(source, nil, nil, aqm.NewNoopLogger())
	rec.SetScope(Scope{Role: RoleCustomer, LocationName: "Main Hall"})

	poller := NewPoller(rec, source, aqm.NewNoopLogger())
	poller.interval = 10 * time.Millisecond

	if err := poller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer poller.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)

	source.mu.Lock()
	calls := len(source.DeltaCalls)
	source.mu.Unlock()
	if calls != 0 {
		t.Errorf("DeltaSince called %d times for a customer terminal, want 0", calls)
	}
}

func TestPollerStop(t *testing.T) {
	source := NewMockOrderSource()
	rec, _ := newTestReconciler(source)

	poller := NewPoller(rec, source, aqm.NewNoopLogger())
	poller.interval = 5 * time.Millisecond

	if err := poller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := poller.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	source.mu.Lock()
	calls := len(source.DeltaCalls)
	source.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	source.mu.Lock()
	after := len(source.DeltaCalls)
	source.mu.Unlock()
	if after != calls {
		t.Errorf("poller still polling after Stop(): %d -> %d calls", calls, after)
	}
}
