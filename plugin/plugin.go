// Package plugin provides an extensible plugin system for Circulate.
// Plugins can hook into reservation lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/circulate/eligibility"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Reservation lifecycle hooks
// ──────────────────────────────────────────────────

// OnReservationCreated is called after a reservation is committed.
type OnReservationCreated interface {
	Plugin
	OnReservationCreated(ctx context.Context, r *reservation.Reservation) error
}

// OnReservationDenied is called when eligibility rejects a reserve request.
type OnReservationDenied interface {
	Plugin
	OnReservationDenied(ctx context.Context, userID string, itemID id.ItemID, d eligibility.Decision) error
}

// OnHandoverConfirmed is called after the first handover of a reservation.
type OnHandoverConfirmed interface {
	Plugin
	OnHandoverConfirmed(ctx context.Context, r *reservation.Reservation) error
}

// OnItemReturned is called after a return is committed.
type OnItemReturned interface {
	Plugin
	OnItemReturned(ctx context.Context, r *reservation.Reservation, evt *event.Event) error
}

// OnOverdueSwept is called after a sweep moved reservations to overdue.
type OnOverdueSwept interface {
	Plugin
	OnOverdueSwept(ctx context.Context, count int64) error
}

// ──────────────────────────────────────────────────
// Progression hooks
// ──────────────────────────────────────────────────

// OnTrustChanged is called after a member's trust score changed.
type OnTrustChanged interface {
	Plugin
	OnTrustChanged(ctx context.Context, c *progression.Change) error
}

// OnLevelUp is called after a member reached a higher level.
type OnLevelUp interface {
	Plugin
	OnLevelUp(ctx context.Context, c *progression.Change) error
}

// ──────────────────────────────────────────────────
// Outbox hooks
// ──────────────────────────────────────────────────

// OnEventsRelayed is called after the relay delivered pending outbox events.
type OnEventsRelayed interface {
	Plugin
	OnEventsRelayed(ctx context.Context, delivered, failed int) error
}
