package circulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/circulate/eligibility"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
	"github.com/xraph/circulate/types"
)

// Denial codes for refusals that do not come from the eligibility evaluator.
const (
	CodeReservationNotActive = "reservation_not_active"
	CodeHandoverConfirmed    = "handover_confirmed"
	CodeAlreadyReturned      = "already_returned"
)

// ReturnResult reports a committed return.
type ReturnResult struct {
	Reservation *reservation.Reservation `json:"reservation"`
	Event       *event.Event             `json:"event"`
	// Changes are the progression updates applied during synchronous
	// delivery. Empty when Delivered is false; the relay applies them later.
	Changes   []*progression.Change `json:"changes,omitempty"`
	Delivered bool                  `json:"delivered"`
}

// ──────────────────────────────────────────────────
// Reservations
// ──────────────────────────────────────────────────

// Reserve grants userID exclusive hold of itemID for durationDays days.
//
// The availability check, the eligibility decision and the write happen in
// that order; the write itself re-checks availability and the plan limit
// atomically, so concurrent requests for one item yield exactly one winner.
// Losers receive ErrItemUnavailable.
func (e *Engine) Reserve(ctx context.Context, userID string, itemID id.ItemID, durationDays int) (_ *reservation.Reservation, err error) {
	ctx, span := e.startSpan(ctx, "Reserve", attrUserID.String(userID), attrItemID.String(itemID.String()))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, ValidationError{Field: "user_id", Message: "is required"}
	}
	if durationDays < reservation.MinDurationDays || durationDays > reservation.MaxDurationDays {
		return nil, ValidationError{
			Field:   "duration_days",
			Message: fmt.Sprintf("must be between %d and %d", reservation.MinDurationDays, reservation.MaxDurationDays),
		}
	}

	it, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, e.fail(ctx, "reserve: get item", err, "item_id", itemID.String())
	}

	available, err := e.store.IsAvailable(ctx, itemID)
	if err != nil {
		return nil, e.fail(ctx, "reserve: check availability", err, "item_id", itemID.String())
	}
	if !available {
		e.logger.Debug("reserve rejected: item unavailable",
			"user_id", userID,
			"item_id", itemID.String(),
		)
		return nil, ErrItemUnavailable
	}

	snap, err := e.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if d := eligibility.Evaluate(*snap, it.Requirement(), now); !d.Allowed {
		return nil, e.deny(ctx, userID, itemID, d, nil)
	}

	r := &reservation.Reservation{
		Entity:        types.NewEntityAt(now),
		ID:            id.NewReservationID(),
		ItemID:        itemID,
		BorrowerID:    userID,
		Status:        reservation.StatusActive,
		HandoverToken: id.NewHandoverToken(),
		DueAt:         now.Add(time.Duration(durationDays) * 24 * time.Hour),
	}

	if err := e.store.Reserve(ctx, r, reservation.Guard{MaxActive: snap.Plan.MaxItems}); err != nil {
		switch {
		case errors.Is(err, ErrItemUnavailable):
			e.logger.Debug("reserve lost availability race",
				"user_id", userID,
				"item_id", itemID.String(),
			)
			return nil, err
		case errors.Is(err, ErrLimitExceeded):
			d := eligibility.Decision{Code: eligibility.CodeLimitExceeded, Reason: eligibility.CodeLimitExceeded.Reason()}
			return nil, e.deny(ctx, userID, itemID, d, err)
		default:
			return nil, e.fail(ctx, "reserve: write", err, "item_id", itemID.String(), "user_id", userID)
		}
	}

	e.invalidate(ctx, itemID)
	e.plugins.EmitReservationCreated(ctx, r)

	e.logger.Info("reservation created",
		"reservation_id", r.ID.String(),
		"item_id", itemID.String(),
		"user_id", userID,
		"due_at", r.DueAt,
	)
	return r, nil
}

// ConfirmHandover records the physical handover of a reservation. A token
// confirms at most once.
func (e *Engine) ConfirmHandover(ctx context.Context, token string) (_ *reservation.Reservation, err error) {
	ctx, span := e.startSpan(ctx, "ConfirmHandover")
	defer func() { endSpan(span, err) }()

	if token == "" {
		return nil, ValidationError{Field: "token", Message: "is required"}
	}

	r, err := e.store.GetReservationByToken(ctx, token)
	if err != nil {
		return nil, e.fail(ctx, "confirm handover: lookup", err)
	}
	span.SetAttributes(attrReservationID.String(r.ID.String()))

	if r.Status != reservation.StatusActive {
		return nil, denied(ErrReservationNotActive, CodeReservationNotActive, "reservation not active")
	}
	if r.HandedOverAt != nil {
		return nil, denied(ErrHandoverConfirmed, CodeHandoverConfirmed, "handover already confirmed")
	}

	now := e.now()
	if err := e.store.ConfirmHandover(ctx, r.ID, now); err != nil {
		switch {
		case errors.Is(err, ErrReservationNotActive):
			return nil, denied(err, CodeReservationNotActive, "reservation not active")
		case errors.Is(err, ErrHandoverConfirmed):
			return nil, denied(err, CodeHandoverConfirmed, "handover already confirmed")
		default:
			return nil, e.fail(ctx, "confirm handover: write", err, "reservation_id", r.ID.String())
		}
	}
	r.HandedOverAt = &now
	r.UpdatedAt = now

	e.plugins.EmitHandoverConfirmed(ctx, r)
	e.logger.Info("handover confirmed",
		"reservation_id", r.ID.String(),
		"item_id", r.ItemID.String(),
	)
	return r, nil
}

// Return concludes a reservation. The reservation, the item flag and the
// outbox event are written atomically; the event is then delivered to the
// progression engine. A failed delivery does not fail the return: the event
// stays pending and RelayPending retries it.
func (e *Engine) Return(ctx context.Context, rsvID id.ReservationID, cond reservation.Condition, notes string) (_ *ReturnResult, err error) {
	ctx, span := e.startSpan(ctx, "Return", attrReservationID.String(rsvID.String()))
	defer func() { endSpan(span, err) }()

	if _, perr := reservation.ParseCondition(string(cond)); perr != nil {
		return nil, ValidationError{Field: "condition", Message: perr.Error()}
	}

	r, err := e.store.GetReservation(ctx, rsvID)
	if err != nil {
		return nil, e.fail(ctx, "return: get reservation", err)
	}
	span.SetAttributes(attrUserID.String(r.BorrowerID), attrItemID.String(r.ItemID.String()))

	if !r.Status.Holding() {
		return nil, denied(ErrAlreadyReturned, CodeAlreadyReturned, "already returned")
	}

	p, err := e.planFor(ctx, r.BorrowerID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	evt := event.NewReturn(r, cond, now, p.plan.PointMultiplierPct)
	done, err := e.store.ReturnReservation(ctx, rsvID, reservation.ReturnInput{
		ReturnedAt: now,
		Condition:  cond,
		Notes:      notes,
	}, evt)
	if err != nil {
		if errors.Is(err, ErrAlreadyReturned) {
			return nil, denied(err, CodeAlreadyReturned, "already returned")
		}
		return nil, e.fail(ctx, "return: write", err, "reservation_id", rsvID.String())
	}

	e.invalidate(ctx, done.ItemID)

	result := &ReturnResult{Reservation: done, Event: evt}
	changes, derr := e.deliver(ctx, evt)
	if derr != nil {
		e.logger.Error("progression delivery failed, event left for relay",
			"event_id", evt.ID.String(),
			"reservation_id", rsvID.String(),
			"error", derr,
		)
	} else {
		result.Changes = changes
		result.Delivered = true
	}

	e.plugins.EmitItemReturned(ctx, done, evt)
	e.logger.Info("item returned",
		"reservation_id", rsvID.String(),
		"item_id", done.ItemID.String(),
		"user_id", done.BorrowerID,
		"timeliness", evt.Timeliness,
		"condition", cond,
	)
	return result, nil
}

// SweepOverdue moves every active reservation past its due time to overdue.
// Running it twice in a row changes nothing the second time.
func (e *Engine) SweepOverdue(ctx context.Context) (_ int64, err error) {
	ctx, span := e.startSpan(ctx, "SweepOverdue")
	defer func() { endSpan(span, err) }()

	n, err := e.store.MarkOverdue(ctx, e.now())
	if err != nil {
		return 0, e.fail(ctx, "sweep overdue", err)
	}
	if n > 0 {
		e.plugins.EmitOverdueSwept(ctx, n)
		e.logger.Info("overdue reservations swept", "count", n)
	}
	return n, nil
}

// GetReservation retrieves a reservation by ID.
func (e *Engine) GetReservation(ctx context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	r, err := e.store.GetReservation(ctx, rsvID)
	if err != nil {
		return nil, e.fail(ctx, "get reservation", err)
	}
	return r, nil
}

// ListReservations lists reservations matching opts.
func (e *Engine) ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	if err := validatePage(opts.Limit, opts.Offset); err != nil {
		return nil, err
	}
	rs, err := e.store.ListReservations(ctx, opts)
	if err != nil {
		return nil, e.fail(ctx, "list reservations", err)
	}
	return rs, nil
}

// IsAvailable answers through the availability cache. The answer may be
// stale for up to the cache TTL; Reserve never relies on it.
func (e *Engine) IsAvailable(ctx context.Context, itemID id.ItemID) (bool, error) {
	ok, err := e.cache.Get(ctx, itemID)
	if err != nil {
		return false, e.fail(ctx, "is available", err, "item_id", itemID.String())
	}
	return ok, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// invalidate drops the cached availability of an item. On failure the cache
// keeps the item marked and answers it from the ledger until a later fill
// or invalidation succeeds, so the ledger write is not failed for it.
func (e *Engine) invalidate(ctx context.Context, itemID id.ItemID) {
	if err := e.cache.Invalidate(ctx, itemID); err != nil {
		e.logger.Error("availability cache invalidation failed",
			"item_id", itemID.String(),
			"error", err,
		)
	}
}

func (e *Engine) deny(ctx context.Context, userID string, itemID id.ItemID, d eligibility.Decision, cause error) error {
	e.plugins.EmitReservationDenied(ctx, userID, itemID, d)
	e.logger.Debug("reserve denied",
		"user_id", userID,
		"item_id", itemID.String(),
		"code", d.Code,
	)
	return &DeniedError{Code: string(d.Code), Reason: d.Reason, Err: cause}
}

// fail classifies err and logs unexpected failures at error level.
func (e *Engine) fail(ctx context.Context, op string, err error, attrs ...any) error {
	err = internal(op, err)
	if IsInternal(err) {
		e.logger.ErrorContext(ctx, "circulate operation failed",
			append([]any{"op", op, "error", err}, attrs...)...,
		)
	}
	return err
}
