package circulate

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/circulate/eligibility"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/plan"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/subscription"
	"github.com/xraph/circulate/types"
)

// ──────────────────────────────────────────────────
// Members & Subscriptions
// ──────────────────────────────────────────────────

// RegisterUser creates the starting progression profile for userID. It is
// idempotent; the existing profile is returned on a repeat call.
func (e *Engine) RegisterUser(ctx context.Context, userID string) (*progression.Profile, error) {
	if userID == "" {
		return nil, ValidationError{Field: "user_id", Message: "is required"}
	}
	p, err := e.progress.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, e.fail(ctx, "register user", err, "user_id", userID)
	}
	return p, nil
}

// Subscribe puts userID on tier until expiresAt (nil never expires). Any
// previous active subscription is canceled.
func (e *Engine) Subscribe(ctx context.Context, userID string, tier plan.Tier, expiresAt *time.Time) (*subscription.Subscription, error) {
	if userID == "" {
		return nil, ValidationError{Field: "user_id", Message: "is required"}
	}
	if _, ok := e.plans[tier]; !ok {
		return nil, ValidationError{Field: "tier", Message: "unknown plan tier " + string(tier)}
	}

	now := e.now()
	prev, err := e.store.GetActiveSubscription(ctx, userID)
	switch {
	case err == nil:
		if cerr := e.store.CancelSubscription(ctx, prev.ID, now); cerr != nil && !errors.Is(cerr, ErrSubscriptionCanceled) {
			return nil, e.fail(ctx, "subscribe: cancel previous", cerr, "user_id", userID)
		}
	case !errors.Is(err, ErrNoActiveSubscription):
		return nil, e.fail(ctx, "subscribe: get active", err, "user_id", userID)
	}

	sub := &subscription.Subscription{
		Entity: types.NewEntityAt(now),
		ID:     id.NewSubscriptionID(),
		UserID: userID,
		Tier:   tier,
		Status: subscription.StatusActive,
	}
	if expiresAt != nil {
		t := expiresAt.UTC()
		sub.ExpiresAt = &t
	}

	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return nil, e.fail(ctx, "subscribe: create", err, "user_id", userID)
	}

	e.logger.Info("subscription created",
		"subscription_id", sub.ID.String(),
		"user_id", userID,
		"tier", tier,
	)
	return sub, nil
}

// CancelSubscription cancels a subscription immediately. The member falls
// back to the basic plan.
func (e *Engine) CancelSubscription(ctx context.Context, subID id.SubscriptionID) error {
	if err := e.store.CancelSubscription(ctx, subID, e.now()); err != nil {
		if errors.Is(err, ErrSubscriptionCanceled) {
			return denied(err, "subscription_canceled", "subscription already canceled")
		}
		return e.fail(ctx, "cancel subscription", err, "subscription_id", subID.String())
	}
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, e.fail(ctx, "get subscription", err)
	}
	return sub, nil
}

type membership struct {
	plan plan.Plan
	sub  *subscription.Subscription
}

// planFor resolves the plan a member is evaluated against. Without an
// active subscription that is the basic plan with no expiry.
func (e *Engine) planFor(ctx context.Context, userID string) (membership, error) {
	sub, err := e.store.GetActiveSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoActiveSubscription) {
			p, _ := e.plans.Lookup(plan.TierBasic)
			return membership{plan: p}, nil
		}
		return membership{}, e.fail(ctx, "resolve plan", err, "user_id", userID)
	}

	p, ok := e.plans.Lookup(sub.Tier)
	if !ok {
		e.logger.Warn("subscription references unknown tier, using basic",
			"subscription_id", sub.ID.String(),
			"tier", sub.Tier,
		)
	}
	return membership{plan: p, sub: sub}, nil
}

// Snapshot assembles the eligibility view of a member. A member seen for
// the first time gets a starting profile.
func (e *Engine) Snapshot(ctx context.Context, userID string) (*eligibility.Snapshot, error) {
	profile, err := e.progress.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, e.fail(ctx, "snapshot: profile", err, "user_id", userID)
	}

	m, err := e.planFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	active, err := e.store.CountActiveReservations(ctx, userID)
	if err != nil {
		return nil, e.fail(ctx, "snapshot: count active", err, "user_id", userID)
	}

	snap := &eligibility.Snapshot{
		UserID:             userID,
		Level:              profile.Level,
		TrustScore:         profile.TrustScore,
		ActiveReservations: active,
		Plan:               m.plan,
	}
	if m.sub != nil {
		snap.SubscriptionExpiresAt = m.sub.ExpiresAt
	}
	return snap, nil
}

// ──────────────────────────────────────────────────
// Progression
// ──────────────────────────────────────────────────

// Profile returns the progression profile of a member.
func (e *Engine) Profile(ctx context.Context, userID string) (*progression.Profile, error) {
	p, err := e.progress.Profile(ctx, userID)
	if err != nil {
		return nil, e.fail(ctx, "get profile", err, "user_id", userID)
	}
	return p, nil
}

// Entries returns the progression journal of a member, newest first.
func (e *Engine) Entries(ctx context.Context, userID string, opts progression.ListOpts) ([]*progression.Entry, error) {
	if err := validatePage(opts.Limit, opts.Offset); err != nil {
		return nil, err
	}
	entries, err := e.progress.Entries(ctx, userID, opts)
	if err != nil {
		return nil, e.fail(ctx, "list entries", err, "user_id", userID)
	}
	return entries, nil
}

// RecordContribution credits a community contribution. key makes the
// credit idempotent; a repeated key returns a nil change. An empty key
// always credits.
func (e *Engine) RecordContribution(ctx context.Context, userID, key, reason string) (*progression.Change, error) {
	if userID == "" {
		return nil, ValidationError{Field: "user_id", Message: "is required"}
	}
	if _, err := e.progress.EnsureProfile(ctx, userID); err != nil {
		return nil, e.fail(ctx, "record contribution: profile", err, "user_id", userID)
	}
	m, err := e.planFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if key != "" {
		key = "contribution:" + key
	}
	c, err := e.progress.Apply(ctx, userID, progression.ActionCommunityContribution, m.plan.PointMultiplierPct, key, reason)
	if err != nil {
		return nil, e.fail(ctx, "record contribution", err, "user_id", userID)
	}
	return c, nil
}

// ReportLost penalizes the borrower of a holding reservation whose item was
// lost. The reservation keeps holding the item; returning it later restores
// circulation. Reporting the same reservation twice applies the penalty once.
func (e *Engine) ReportLost(ctx context.Context, rsvID id.ReservationID, reason string) (*progression.Change, error) {
	r, err := e.store.GetReservation(ctx, rsvID)
	if err != nil {
		return nil, e.fail(ctx, "report lost: get reservation", err)
	}
	if !r.Status.Holding() {
		return nil, denied(ErrAlreadyReturned, CodeAlreadyReturned, "already returned")
	}

	key := rsvID.String() + ":" + string(progression.ActionLostItem)
	c, err := e.progress.Apply(ctx, r.BorrowerID, progression.ActionLostItem, 100, key, reason)
	if err != nil {
		return nil, e.fail(ctx, "report lost", err, "reservation_id", rsvID.String())
	}
	if c != nil {
		e.logger.Warn("item reported lost",
			"reservation_id", rsvID.String(),
			"item_id", r.ItemID.String(),
			"user_id", r.BorrowerID,
			"status", r.Status,
		)
	}
	return c, nil
}

// OverrideTrust raises or lowers a member's trust by the admin override
// delta.
func (e *Engine) OverrideTrust(ctx context.Context, userID string, raise bool, reason string) (*progression.Change, error) {
	action := progression.ActionAdminLower
	if raise {
		action = progression.ActionAdminRaise
	}
	c, err := e.progress.Apply(ctx, userID, action, 100, "", reason)
	if err != nil {
		return nil, e.fail(ctx, "override trust", err, "user_id", userID)
	}
	return c, nil
}

// AdjustPoints adds delta points (possibly negative) to a member. Points
// never drop below zero and the level is never lowered.
func (e *Engine) AdjustPoints(ctx context.Context, userID string, delta int64, reason string) (*progression.Change, error) {
	if delta == 0 {
		return nil, ValidationError{Field: "delta", Message: "must not be zero"}
	}
	c, err := e.progress.AdjustPoints(ctx, userID, delta, "", reason)
	if err != nil {
		return nil, e.fail(ctx, "adjust points", err, "user_id", userID)
	}
	return c, nil
}
