package order

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quickserveclub/quickserve/pkg/event"
)

// Order is the canonical order entity held by the reconciler. Exactly one
// record exists per id; cancellation and completion are status transitions,
// never removals.
type Order struct {
	ID              string     `bson:"_id" json:"id"`
	Items           []LineItem `bson:"items" json:"items"`
	Total           float64    `bson:"total" json:"total"`
	Status          string     `bson:"status" json:"status"`
	Timestamp       time.Time  `bson:"timestamp" json:"timestamp"`
	CustomerID      string     `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	RestaurantID    string     `bson:"restaurant_id,omitempty" json:"restaurant_id,omitempty"`
	TableNumber     string     `bson:"table_number,omitempty" json:"table_number,omitempty"`
	LocationName    string     `bson:"location_name,omitempty" json:"location_name,omitempty"`
	Remark          string     `bson:"remark,omitempty" json:"remark,omitempty"`
	RejectionReason string     `bson:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	RejectionNote   string     `bson:"rejection_note,omitempty" json:"rejection_note,omitempty"`
}

// LineItem is one line of an order with its selected composition.
type LineItem struct {
	Name      string   `bson:"name" json:"name"`
	UnitPrice float64  `bson:"unit_price" json:"unit_price"`
	Quantity  int      `bson:"quantity" json:"quantity"`
	Variant   string   `bson:"variant,omitempty" json:"variant,omitempty"`
	AddOns    []string `bson:"add_ons,omitempty" json:"add_ons,omitempty"`
}

// Clone returns a deep copy safe to hand outside the reconciler.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Items != nil {
		cp.Items = make([]LineItem, len(o.Items))
		copy(cp.Items, o.Items)
	}
	return &cp
}

// FromRecord coerces a wire record into a canonical Order. Malformed items
// default to empty and unparseable timestamps to now, so a single bad record
// never blocks a merge.
func FromRecord(rec event.OrderRecord) *Order {
	items := event.ParseItems(rec.Items)
	lines := make([]LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, LineItem{
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Variant:   it.Variant,
			AddOns:    it.AddOns,
		})
	}

	return &Order{
		ID:              rec.ID,
		Items:           lines,
		Total:           rec.Total,
		Status:          rec.Status,
		Timestamp:       event.ParseTimestamp(rec.Timestamp),
		CustomerID:      rec.CustomerID,
		RestaurantID:    rec.RestaurantID,
		TableNumber:     rec.TableNumber,
		LocationName:    rec.LocationName,
		Remark:          rec.Remark,
		RejectionReason: rec.RejectionReason,
		RejectionNote:   rec.RejectionNote,
	}
}

// Role identifies which kind of terminal this client is running as.
const (
	RoleKitchen  = "kitchen"
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Scope pins the reconciler to one venue or location. Changing scope resets
// the watermark and re-establishes the push subscription.
type Scope struct {
	Role         string
	RestaurantID string
	LocationName string
}

// Subject returns the push subject for this scope.
func (s Scope) Subject() string {
	switch s.Role {
	case RoleKitchen:
		return event.VenueSubject(s.RestaurantID)
	case RoleCustomer:
		return event.LocationSubject(s.LocationName)
	default:
		// Admin oversees every venue.
		return event.AllVenuesSubject()
	}
}

// ComposeOrderID builds a human-decodable order id from a venue code and a
// per-venue sequence, e.g. QS0000001.
func ComposeOrderID(venueCode string, seq int64) string {
	return fmt.Sprintf("%s%07d", strings.ToUpper(venueCode), seq)
}

// SubOrderID suffixes an order id for the nth vendor when a single cart
// spans multiple vendors: QS0000001-A, QS0000001-B, ...
func SubOrderID(id string, n int) string {
	return fmt.Sprintf("%s-%c", id, 'A'+rune(n))
}

// NextSequence returns one past the highest sequence found among ids with
// the given venue prefix. Used to seed the placement counter from the
// already-known order list.
func NextSequence(orders []Order, venueCode string) int64 {
	prefix := strings.ToUpper(venueCode)
	var max int64
	for i := range orders {
		id := orders[i].ID
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		digits := strings.TrimPrefix(id, prefix)
		if idx := strings.IndexByte(digits, '-'); idx >= 0 {
			digits = digits[:idx]
		}
		seq, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			continue
		}
		if seq > max {
			max = seq
		}
	}
	return max + 1
}
