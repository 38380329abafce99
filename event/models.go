// Package event defines the lifecycle outbox. Return events are written in
// the same atomic unit that concludes a reservation and stay pending until
// the progression engine has consumed them.
package event

import (
	"time"

	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/reservation"
)

// Type names an outbox event.
type Type string

const (
	TypeItemReturned Type = "item.returned"
)

// Event is an outbox record.
type Event struct {
	ID            id.EventID             `json:"id"`
	Type          Type                   `json:"type"`
	ReservationID id.ReservationID       `json:"reservation_id"`
	ItemID        id.ItemID              `json:"item_id"`
	UserID        string                 `json:"user_id"`
	Condition     reservation.Condition  `json:"condition"`
	Timeliness    reservation.Timeliness `json:"timeliness"`
	WasLate       bool                   `json:"was_late"`
	// MultiplierPct is the borrower's plan point multiplier at return time,
	// in percent (100 = x1.0).
	MultiplierPct int        `json:"multiplier_pct"`
	OccurredAt    time.Time  `json:"occurred_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

// NewReturn builds the outbox event for r being returned at at.
func NewReturn(r *reservation.Reservation, cond reservation.Condition, at time.Time, multiplierPct int) *Event {
	timeliness := reservation.Classify(r, at)
	return &Event{
		ID:            id.NewEventID(),
		Type:          TypeItemReturned,
		ReservationID: r.ID,
		ItemID:        r.ItemID,
		UserID:        r.BorrowerID,
		Condition:     cond,
		Timeliness:    timeliness,
		WasLate:       at.After(r.DueAt),
		MultiplierPct: multiplierPct,
		OccurredAt:    at.UTC(),
	}
}

// Delivered reports whether the event has been consumed.
func (e *Event) Delivered() bool { return e.DeliveredAt != nil }
