// Package seats derives seat counters for an owner scope and credits
// purchased seats.
package seats

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInsufficientSeats = errors.New("insufficient seats")

// Counts is what the license ledger holds for one scope.
type Counts struct {
	Assigned  int
	Activated int
}

// Stats are the seat counters for one scope. Available goes negative only
// when seats were oversold by concurrent adds.
type Stats struct {
	Purchased int
	Assigned  int
	Activated int
	Pending   int
	Available int
}

// Compute derives Stats from the purchased counter and the ledger counts.
func Compute(purchased int, c Counts) Stats {
	return Stats{
		Purchased: purchased,
		Assigned:  c.Assigned,
		Activated: c.Activated,
		Pending:   c.Assigned - c.Activated,
		Available: purchased - c.Assigned,
	}
}

// InsufficientSeatsError reports a rejected reservation.
type InsufficientSeatsError struct {
	Available int
	Requested int
}

func (e *InsufficientSeatsError) Error() string {
	if e.Available <= 0 {
		return "No available licenses. Please purchase more licenses."
	}
	return fmt.Sprintf("Only %d license(s) available. You're trying to add %d.", e.Available, e.Requested)
}

func (e *InsufficientSeatsError) Is(target error) bool {
	return target == ErrInsufficientSeats
}

// Reserve checks that n more licenses fit. It does not hold the seats:
// two concurrent reservations can both succeed.
func (s Stats) Reserve(n int) error {
	if n > s.Available {
		return &InsufficientSeatsError{Available: s.Available, Requested: n}
	}
	return nil
}

// MarshalJSON emits the counters together with the field names older
// dashboard builds still read.
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]int{
		"purchased": s.Purchased,
		"assigned":  s.Assigned,
		"activated": s.Activated,
		"pending":   s.Pending,
		"available": s.Available,

		"total":                          s.Assigned,
		"purchased_license_count":        s.Purchased,
		"active_purchased_license_count": s.Activated,
		"available_licenses":             s.Available,
	})
}
