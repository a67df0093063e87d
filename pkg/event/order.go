package event

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
)

// OrderEvent is the push envelope published for order table changes.
// Kitchen terminals subscribe by venue, customer terminals by location.
type OrderEvent struct {
	EventType  string      `json:"event_type"`
	EventID    string      `json:"event_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Order      OrderRecord `json:"order"`
}

// OrderRecord is the backing-store order row as it travels over the wire.
// Items and Timestamp are kept raw because upstream producers are not
// consistent about their encoding; use ParseItems and ParseTimestamp.
type OrderRecord struct {
	ID              string          `json:"id"`
	Items           json.RawMessage `json:"items,omitempty"`
	Total           float64         `json:"total"`
	Status          string          `json:"status"`
	Timestamp       json.RawMessage `json:"timestamp,omitempty"`
	CustomerID      string          `json:"customer_id,omitempty"`
	RestaurantID    string          `json:"restaurant_id,omitempty"`
	TableNumber     string          `json:"table_number,omitempty"`
	LocationName    string          `json:"location_name,omitempty"`
	Remark          string          `json:"remark,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	RejectionNote   string          `json:"rejection_note,omitempty"`
}

// LineItemRecord is a single order line as stored in the items array.
type LineItemRecord struct {
	Name      string   `json:"name"`
	UnitPrice float64  `json:"unit_price"`
	Quantity  int      `json:"quantity"`
	Variant   string   `json:"variant,omitempty"`
	AddOns    []string `json:"add_ons,omitempty"`
}

// ParseItems decodes the raw items array. A missing or malformed field
// yields an empty list so one bad record cannot block a merge.
func ParseItems(raw json.RawMessage) []LineItemRecord {
	if len(raw) == 0 {
		return []LineItemRecord{}
	}
	var items []LineItemRecord
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return []LineItemRecord{}
	}
	return items
}

// ParseTimestamp coerces the raw timestamp field into a UTC instant.
// Accepted encodings: integer epoch millis, numeric strings (including
// large-integer string types) and ISO timestamps. Anything unparseable
// falls back to the current time.
func ParseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Now().UTC()
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return time.UnixMilli(n).UTC()
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return time.UnixMilli(int64(f)).UTC()
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if millis, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(millis).UTC()
		}
		layouts := []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}

	return time.Now().UTC()
}

// Subject construction for order push events. One subject per venue keeps
// kitchen subscriptions narrow; customer terminals subscribe by location.

const ordersSubjectPrefix = "orders"

func VenueSubject(restaurantID string) string {
	return ordersSubjectPrefix + ".venue." + subjectToken(restaurantID)
}

func LocationSubject(locationName string) string {
	return ordersSubjectPrefix + ".location." + subjectToken(locationName)
}

// AllVenuesSubject matches every venue subject via NATS wildcard.
func AllVenuesSubject() string {
	return ordersSubjectPrefix + ".venue.*"
}

// subjectToken makes an identifier safe for use as a NATS subject token.
func subjectToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	replacer := strings.NewReplacer(" ", "-", ".", "-", "*", "-", ">", "-")
	s = replacer.Replace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
