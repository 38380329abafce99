package circulate

import (
	"context"
	"fmt"

	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/progression"
)

// ──────────────────────────────────────────────────
// Outbox
// ──────────────────────────────────────────────────

// RelayPending delivers one batch of pending outbox events to the
// progression engine and returns how many were delivered. Delivery is at
// least once; the progression journal makes a redelivery a no-op.
func (e *Engine) RelayPending(ctx context.Context) (int, error) {
	events, err := e.store.PendingEvents(ctx, e.relayBatchSize)
	if err != nil {
		return 0, e.fail(ctx, "relay: pending events", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var errs MultiError
	delivered := 0
	for _, evt := range events {
		if _, err := e.deliver(ctx, evt); err != nil {
			errs.Add(fmt.Errorf("event %s: %w", evt.ID, err))
			continue
		}
		delivered++
	}

	e.plugins.EmitEventsRelayed(ctx, delivered, len(errs.Errors))
	e.logger.Debug("outbox relayed",
		"delivered", delivered,
		"failed", len(errs.Errors),
	)

	if errs.HasErrors() {
		return delivered, errs
	}
	return delivered, nil
}

// deliver applies evt to the progression engine and marks it delivered.
func (e *Engine) deliver(ctx context.Context, evt *event.Event) ([]*progression.Change, error) {
	if _, err := e.progress.EnsureProfile(ctx, evt.UserID); err != nil {
		return nil, err
	}

	var changes []*progression.Change
	switch evt.Type {
	case event.TypeItemReturned:
		c, err := e.progress.HandleReturn(ctx, evt)
		if err != nil {
			return nil, err
		}
		changes = c
	default:
		e.logger.Warn("outbox event of unknown type skipped",
			"event_id", evt.ID.String(),
			"type", evt.Type,
		)
	}

	at := e.now()
	if err := e.store.MarkEventDelivered(ctx, evt.ID, at); err != nil {
		return changes, err
	}
	evt.DeliveredAt = &at
	return changes, nil
}
