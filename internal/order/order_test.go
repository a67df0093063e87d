package order

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/quickserveclub/quickserve/pkg/event"
)

func TestFromRecord(t *testing.T) {
	rec := event.OrderRecord{
		ID:           "QS0000042",
		Items:        json.RawMessage(`[{"name":"Latte","unit_price":4.5,"quantity":2,"variant":"iced","add_ons":["oat milk"]}]`),
		Total:        9.0,
		Status:       "pending",
		Timestamp:    json.RawMessage(`1750000000000`),
		CustomerID:   "cust-1",
		RestaurantID: "venue-1",
		TableNumber:  "T3",
		LocationName: "Main Hall",
		Remark:       "no sugar",
	}

	o := FromRecord(rec)

	if o.ID != "QS0000042" {
		t.Errorf("ID = %s", o.ID)
	}
	if len(o.Items) != 1 || o.Items[0].Name != "Latte" || o.Items[0].Quantity != 2 {
		t.Errorf("Items = %+v", o.Items)
	}
	if o.Items[0].AddOns[0] != "oat milk" {
		t.Errorf("AddOns = %v", o.Items[0].AddOns)
	}
	if o.Timestamp != time.UnixMilli(1750000000000).UTC() {
		t.Errorf("Timestamp = %v", o.Timestamp)
	}
	if o.Total != 9.0 || o.Status != "pending" || o.TableNumber != "T3" {
		t.Errorf("record fields lost: %+v", o)
	}
}

func TestFromRecordMalformedItems(t *testing.T) {
	rec := event.OrderRecord{
		ID:     "QS0000001",
		Items:  json.RawMessage(`"not an array"`),
		Status: "pending",
	}

	o := FromRecord(rec)

	if o.Items == nil || len(o.Items) != 0 {
		t.Errorf("Items = %v, want empty fallback for malformed payload", o.Items)
	}
}

func TestCloneIsDeep(t *testing.T) {
	o := makeOrder("QS0000001", "pending", time.Now().UTC())
	cp := o.Clone()

	cp.Items[0].Name = "changed"
	cp.Status = "served"

	if o.Items[0].Name == "changed" {
		t.Error("Clone() shares the items slice")
	}
	if o.Status == "served" {
		t.Error("Clone() shares the struct")
	}
}

func TestComposeOrderID(t *testing.T) {
	tests := []struct {
		venueCode string
		seq       int64
		want      string
	}{
		{"QS", 1, "QS0000001"},
		{"qs", 42, "QS0000042"},
		{"BK", 1234567, "BK1234567"},
	}

	for _, tt := range tests {
		if got := ComposeOrderID(tt.venueCode, tt.seq); got != tt.want {
			t.Errorf("ComposeOrderID(%s, %d) = %s, want %s", tt.venueCode, tt.seq, got, tt.want)
		}
	}
}

func TestSubOrderID(t *testing.T) {
	if got := SubOrderID("QS0000001", 0); got != "QS0000001-A" {
		t.Errorf("SubOrderID() = %s, want QS0000001-A", got)
	}
	if got := SubOrderID("QS0000001", 2); got != "QS0000001-C" {
		t.Errorf("SubOrderID() = %s, want QS0000001-C", got)
	}
}

func TestNextSequence(t *testing.T) {
	orders := []Order{
		{ID: "QS0000003"},
		{ID: "QS0000011-B"},
		{ID: "BK0000099"},
		{ID: "QSXXXX"},
	}

	if got := NextSequence(orders, "QS"); got != 12 {
		t.Errorf("NextSequence() = %d, want 12", got)
	}
	if got := NextSequence(nil, "QS"); got != 1 {
		t.Errorf("NextSequence(empty) = %d, want 1", got)
	}
}

func TestScopeSubject(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		want  string
	}{
		{
			name:  "kitchen",
			scope: Scope{Role: RoleKitchen, RestaurantID: "venue-1"},
			want:  "orders.venue.venue-1",
		},
		{
			name:  "customer",
			scope: Scope{Role: RoleCustomer, LocationName: "Main Hall"},
			want:  "orders.location.main-hall",
		},
		{
			name:  "admin",
			scope: Scope{Role: RoleAdmin},
			want:  "orders.venue.*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.Subject(); got != tt.want {
				t.Errorf("Subject() = %s, want %s", got, tt.want)
			}
		})
	}
}
