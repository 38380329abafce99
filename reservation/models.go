// Package reservation defines borrow reservations and their lifecycle.
package reservation

import (
	"fmt"
	"time"

	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/types"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusActive   Status = "active"
	StatusOverdue  Status = "overdue"
	StatusReturned Status = "returned"
)

// Holding reports whether a reservation in this status keeps the item
// out of circulation.
func (s Status) Holding() bool {
	return s == StatusActive || s == StatusOverdue
}

// Condition is the state an item comes back in.
type Condition string

const (
	ConditionGood    Condition = "good"
	ConditionDamaged Condition = "damaged"
)

// ParseCondition validates a return condition.
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(s); c {
	case ConditionGood, ConditionDamaged:
		return c, nil
	default:
		return "", fmt.Errorf("reservation: unknown condition %q", s)
	}
}

// Duration bounds for a reservation, in whole days.
const (
	MinDurationDays = 1
	MaxDurationDays = 30
)

// VeryLateAfter is how far past due a return must be to count as very late.
const VeryLateAfter = 72 * time.Hour

// Reservation grants one borrower the exclusive hold of one item.
type Reservation struct {
	types.Entity
	ID             id.ReservationID `json:"id"`
	ItemID         id.ItemID        `json:"item_id"`
	BorrowerID     string           `json:"borrower_id"`
	Status         Status           `json:"status"`
	HandoverToken  string           `json:"handover_token"`
	DueAt          time.Time        `json:"due_at"`
	HandedOverAt   *time.Time       `json:"handed_over_at,omitempty"`
	ReturnedAt     *time.Time       `json:"returned_at,omitempty"`
	Condition      Condition        `json:"condition,omitempty"`
	ConditionNotes string           `json:"condition_notes,omitempty"`
}

// Timeliness classifies when an item came back relative to its loan window.
type Timeliness string

const (
	TimelinessEarly    Timeliness = "early"
	TimelinessOnTime   Timeliness = "on_time"
	TimelinessLate     Timeliness = "late"
	TimelinessVeryLate Timeliness = "very_late"
)

// Late reports whether the return happened after the due time.
func (t Timeliness) Late() bool {
	return t == TimelinessLate || t == TimelinessVeryLate
}

// Classify places a return at time at within the reservation window.
// A return before half the loan duration has elapsed is early; anything up
// to and including DueAt is on time; up to VeryLateAfter past due is late.
func Classify(r *Reservation, at time.Time) Timeliness {
	if at.After(r.DueAt) {
		if at.Sub(r.DueAt) > VeryLateAfter {
			return TimelinessVeryLate
		}
		return TimelinessLate
	}
	halfway := r.CreatedAt.Add(r.DueAt.Sub(r.CreatedAt) / 2)
	if at.Before(halfway) {
		return TimelinessEarly
	}
	return TimelinessOnTime
}
