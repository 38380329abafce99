package store

import (
	"context"
	"time"

	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/item"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
	"github.com/xraph/circulate/subscription"
)

// Store is the unified storage interface for all Circulate entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Item methods
	CreateItem(ctx context.Context, i *item.Item) error
	GetItem(ctx context.Context, itemID id.ItemID) (*item.Item, error)
	ListItems(ctx context.Context, opts item.ListOpts) ([]*item.Item, error)
	UpdateItem(ctx context.Context, i *item.Item) error
	IsAvailable(ctx context.Context, itemID id.ItemID) (bool, error)

	// Reservation methods
	Reserve(ctx context.Context, r *reservation.Reservation, g reservation.Guard) error
	GetReservation(ctx context.Context, rsvID id.ReservationID) (*reservation.Reservation, error)
	GetReservationByToken(ctx context.Context, token string) (*reservation.Reservation, error)
	ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error)
	CountActiveReservations(ctx context.Context, borrowerID string) (int, error)
	ConfirmHandover(ctx context.Context, rsvID id.ReservationID, at time.Time) error
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	// ReturnReservation concludes a holding reservation, sets the item's
	// availability flag and appends evt to the outbox in one atomic unit.
	ReturnReservation(ctx context.Context, rsvID id.ReservationID, in reservation.ReturnInput, evt *event.Event) (*reservation.Reservation, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error)
	CancelSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error

	// Progression methods
	CreateProfile(ctx context.Context, p *progression.Profile) error
	GetProfile(ctx context.Context, userID string) (*progression.Profile, error)
	ApplyEntry(ctx context.Context, e *progression.Entry) (*progression.Profile, error)
	RaiseLevel(ctx context.Context, userID string, level int, at time.Time) (bool, error)
	ListEntries(ctx context.Context, userID string, opts progression.ListOpts) ([]*progression.Entry, error)

	// Outbox methods
	PendingEvents(ctx context.Context, limit int) ([]*event.Event, error)
	MarkEventDelivered(ctx context.Context, evtID id.EventID, at time.Time) error

	// Availability cache methods
	GetCachedAvailability(ctx context.Context, itemID id.ItemID) (bool, error)
	SetCachedAvailability(ctx context.Context, itemID id.ItemID, available bool, ttl time.Duration) error
	InvalidateAvailability(ctx context.Context, itemID id.ItemID) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
