package reservation

import (
	"context"
	"time"

	"github.com/xraph/circulate/id"
)

// Guard carries the conditions the store re-checks inside the atomic
// reserve write, after the coordinator's own pre-checks.
type Guard struct {
	// MaxActive is the borrower's plan limit on holding reservations.
	MaxActive int
}

// ReturnInput describes how a reservation is concluded.
type ReturnInput struct {
	ReturnedAt time.Time
	Condition  Condition
	Notes      string
}

// Store persists reservations.
//
// Reserve is one of the two writes allowed to touch the item availability
// flag (the other is store.Store.ReturnReservation, which also appends to
// the outbox). Both must be atomic with respect to concurrent calls for the
// same item.
type Store interface {
	// Reserve inserts r and clears the item's availability flag. It fails
	// with an unavailable error when another holder won the item, and with
	// a limit error when the borrower already holds g.MaxActive items.
	Reserve(ctx context.Context, r *Reservation, g Guard) error
	GetReservation(ctx context.Context, rsvID id.ReservationID) (*Reservation, error)
	GetReservationByToken(ctx context.Context, token string) (*Reservation, error)
	ListReservations(ctx context.Context, opts ListOpts) ([]*Reservation, error)
	CountActiveReservations(ctx context.Context, borrowerID string) (int, error)
	// ConfirmHandover records the first handover of an active reservation.
	ConfirmHandover(ctx context.Context, rsvID id.ReservationID, at time.Time) error
	// MarkOverdue moves active reservations due before now to overdue.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

// ListOpts filters ListReservations.
type ListOpts struct {
	BorrowerID string
	ItemID     id.ItemID
	Status     Status
	Limit      int
	Offset     int
}
