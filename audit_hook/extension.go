// Package audithook bridges Circulate lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/circulate/eligibility"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/plugin"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnReservationCreated = (*Extension)(nil)
	_ plugin.OnReservationDenied  = (*Extension)(nil)
	_ plugin.OnHandoverConfirmed  = (*Extension)(nil)
	_ plugin.OnItemReturned       = (*Extension)(nil)
	_ plugin.OnOverdueSwept       = (*Extension)(nil)
	_ plugin.OnTrustChanged       = (*Extension)(nil)
	_ plugin.OnLevelUp            = (*Extension)(nil)
	_ plugin.OnEventsRelayed      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Circulate lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Reservation lifecycle hooks
// ──────────────────────────────────────────────────

// OnReservationCreated implements plugin.OnReservationCreated.
func (e *Extension) OnReservationCreated(ctx context.Context, r *reservation.Reservation) error {
	return e.record(ctx, ActionReservationCreated, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID.String(), CategoryLending, nil,
		"item_id", r.ItemID.String(),
		"borrower_id", r.BorrowerID,
		"due_at", r.DueAt,
	)
}

// OnReservationDenied implements plugin.OnReservationDenied.
func (e *Extension) OnReservationDenied(ctx context.Context, userID string, itemID id.ItemID, d eligibility.Decision) error {
	return e.record(ctx, ActionReservationDenied, SeverityWarning, OutcomeFailure,
		ResourceItem, itemID.String(), CategoryAccess, nil,
		"user_id", userID,
		"code", string(d.Code),
		"reason", d.Reason,
	)
}

// OnHandoverConfirmed implements plugin.OnHandoverConfirmed.
func (e *Extension) OnHandoverConfirmed(ctx context.Context, r *reservation.Reservation) error {
	return e.record(ctx, ActionHandoverConfirmed, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID.String(), CategoryLending, nil,
		"item_id", r.ItemID.String(),
		"borrower_id", r.BorrowerID,
	)
}

// OnItemReturned implements plugin.OnItemReturned. Late and damaged returns
// are recorded under their own actions at warning severity.
func (e *Extension) OnItemReturned(ctx context.Context, r *reservation.Reservation, evt *event.Event) error {
	action, severity := ActionItemReturned, SeverityInfo
	switch {
	case evt.Condition == reservation.ConditionDamaged:
		action, severity = ActionItemDamaged, SeverityWarning
	case evt.WasLate:
		action, severity = ActionItemReturnedLate, SeverityWarning
	}

	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceReservation, r.ID.String(), CategoryLending, nil,
		"item_id", r.ItemID.String(),
		"borrower_id", r.BorrowerID,
		"timeliness", string(evt.Timeliness),
		"condition", string(evt.Condition),
		"event_id", evt.ID.String(),
	)
}

// OnOverdueSwept implements plugin.OnOverdueSwept. Empty sweeps are not
// audited.
func (e *Extension) OnOverdueSwept(ctx context.Context, count int64) error {
	if count == 0 {
		return nil
	}
	return e.record(ctx, ActionOverdueSwept, SeverityWarning, OutcomeSuccess,
		ResourceReservation, "", CategoryLending, nil,
		"count", count,
	)
}

// ──────────────────────────────────────────────────
// Progression hooks
// ──────────────────────────────────────────────────

// OnTrustChanged implements plugin.OnTrustChanged.
func (e *Extension) OnTrustChanged(ctx context.Context, c *progression.Change) error {
	severity := SeverityInfo
	if c.TrustDelta < 0 {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionTrustChanged, severity, OutcomeSuccess,
		ResourceProfile, c.UserID, CategoryProgression, nil,
		"action", string(c.Action),
		"event_key", c.EventKey,
		"trust_delta", c.TrustDelta,
		"trust_score", c.TrustScore,
	)
}

// OnLevelUp implements plugin.OnLevelUp.
func (e *Extension) OnLevelUp(ctx context.Context, c *progression.Change) error {
	return e.record(ctx, ActionLevelUp, SeverityInfo, OutcomeSuccess,
		ResourceProfile, c.UserID, CategoryProgression, nil,
		"previous_level", c.PreviousLevel,
		"level", c.Level,
		"points", c.Points,
	)
}

// ──────────────────────────────────────────────────
// Outbox hooks
// ──────────────────────────────────────────────────

// OnEventsRelayed implements plugin.OnEventsRelayed. Only batches with
// failures are audited.
func (e *Extension) OnEventsRelayed(ctx context.Context, delivered, failed int) error {
	if failed == 0 {
		return nil
	}
	outcome := OutcomePartial
	if delivered == 0 {
		outcome = OutcomeFailure
	}
	return e.record(ctx, ActionEventsRelayed, SeverityError, outcome,
		ResourceOutbox, "", CategoryIntegration, nil,
		"delivered", delivered,
		"failed", failed,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
