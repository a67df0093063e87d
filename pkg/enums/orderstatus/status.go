package orderstatus

import (
	"strings"
)

type Status struct {
	Name string
}

func (s Status) Code() string {
	return s.Name
}

func (s Status) Label() string {
	parts := strings.Split(s.Name, "-")
	for i := range parts {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, " ")
}

// Terminal reports whether no further transition is expected for this status.
func (s Status) Terminal() bool {
	return s.Name == Statuses.Completed.Name || s.Name == Statuses.Cancelled.Name
}

type Enum struct {
	Pending   Status
	Ongoing   Status
	Served    Status
	Completed Status
	Cancelled Status
}

var Statuses = Enum{
	Pending:   Status{Name: "pending"},
	Ongoing:   Status{Name: "ongoing"},
	Served:    Status{Name: "served"},
	Completed: Status{Name: "completed"},
	Cancelled: Status{Name: "cancelled"},
}

var All = []Status{
	Statuses.Pending,
	Statuses.Ongoing,
	Statuses.Served,
	Statuses.Completed,
	Statuses.Cancelled,
}

// ByName returns the status for a given name, or nil if not found
func ByName(name string) *Status {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}

// Next returns the status following s in the pending -> ongoing -> served ->
// completed progression, or nil when s is terminal or unknown.
func Next(s Status) *Status {
	switch s.Name {
	case Statuses.Pending.Name:
		return &Statuses.Ongoing
	case Statuses.Ongoing.Name:
		return &Statuses.Served
	case Statuses.Served.Name:
		return &Statuses.Completed
	default:
		return nil
	}
}
