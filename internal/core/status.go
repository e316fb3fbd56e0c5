package core

import "strings"

// Status is a material's position in the fixed fabrication and
// installation lifecycle.
type Status string

const (
	StatusEstimated           Status = "ESTIMATED"
	StatusDetailed            Status = "DETAILED"
	StatusReleasedToFab       Status = "RELEASED_TO_FAB"
	StatusInFabrication       Status = "IN_FABRICATION"
	StatusFabricated          Status = "FABRICATED"
	StatusShippedToField      Status = "SHIPPED_TO_FIELD"
	StatusReceivedOnSite      Status = "RECEIVED_ON_SITE"
	StatusInstalled           Status = "INSTALLED"
	StatusDamaged             Status = "DAMAGED"
	StatusExcess              Status = "EXCESS"
	StatusReturnedToWarehouse Status = "RETURNED_TO_WAREHOUSE"
	StatusMissing             Status = "MISSING"
)

// transitions is the complete adjacency table: forward-only progression
// plus the defined exception branches. A status absent from the map, or
// mapped to an empty set, is terminal. Anything not listed here,
// including self-transitions and backward moves, is invalid.
var transitions = map[Status][]Status{
	StatusEstimated:      {StatusDetailed},
	StatusDetailed:       {StatusReleasedToFab},
	StatusReleasedToFab:  {StatusInFabrication},
	StatusInFabrication:  {StatusFabricated, StatusDamaged},
	StatusFabricated:     {StatusShippedToField, StatusDamaged},
	StatusShippedToField: {StatusReceivedOnSite, StatusDamaged, StatusMissing},
	StatusReceivedOnSite: {StatusInstalled, StatusDamaged, StatusExcess},
	StatusDamaged:        {StatusReturnedToWarehouse},
	StatusExcess:         {StatusReturnedToWarehouse},

	// Terminal states.
	StatusInstalled:           {},
	StatusReturnedToWarehouse: {},
	StatusMissing:             {},
}

// Valid reports whether s belongs to the closed status set.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// IsValidTransition reports whether moving from current to proposed is
// legal under the lifecycle table. It is pure and total: unknown states
// simply have no legal transitions.
func IsValidTransition(current, proposed Status) bool {
	for _, next := range transitions[current] {
		if next == proposed {
			return true
		}
	}
	return false
}

// ParseStatus normalizes case and whitespace and reports whether the
// value names a known status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Statuses returns the closed status set, in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusEstimated, StatusDetailed, StatusReleasedToFab,
		StatusInFabrication, StatusFabricated, StatusShippedToField,
		StatusReceivedOnSite, StatusInstalled, StatusDamaged,
		StatusExcess, StatusReturnedToWarehouse, StatusMissing,
	}
}
