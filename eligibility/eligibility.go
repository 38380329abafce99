// Package eligibility decides whether a member may reserve an item. The
// evaluator is a pure function of a user snapshot, the item requirements
// and the current time; it performs no I/O.
package eligibility

import (
	"time"

	"github.com/xraph/circulate/item"
	"github.com/xraph/circulate/plan"
)

// Code identifies why a reservation was refused.
type Code string

const (
	CodeLimitExceeded       Code = "limit_exceeded"
	CodeRiskTierNotAllowed  Code = "risk_tier_not_permitted"
	CodeInsufficientLevel   Code = "insufficient_level"
	CodeSubscriptionExpired Code = "subscription_expired"
)

// Reason returns the human-readable reason for a code.
func (c Code) Reason() string {
	switch c {
	case CodeLimitExceeded:
		return "limit exceeded"
	case CodeRiskTierNotAllowed:
		return "risk tier not permitted"
	case CodeInsufficientLevel:
		return "insufficient level"
	case CodeSubscriptionExpired:
		return "subscription expired"
	default:
		return string(c)
	}
}

// Snapshot is the read-only view of a member used for one decision.
type Snapshot struct {
	UserID                string     `json:"user_id"`
	Level                 int        `json:"level"`
	TrustScore            int        `json:"trust_score"`
	ActiveReservations    int        `json:"active_reservations"`
	Plan                  plan.Plan  `json:"plan"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
}

// Decision is the evaluator's verdict.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    Code   `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the positive decision.
var Allow = Decision{Allowed: true}

func deny(c Code) Decision {
	return Decision{Code: c, Reason: c.Reason()}
}

// Evaluate applies the checks in a fixed order and returns the first
// failure: plan limit, risk tier, level, then subscription expiry.
func Evaluate(s Snapshot, req item.Requirement, now time.Time) Decision {
	if s.ActiveReservations >= s.Plan.MaxItems {
		return deny(CodeLimitExceeded)
	}
	if !s.Plan.Allows(req.RiskTier) {
		return deny(CodeRiskTierNotAllowed)
	}
	if s.Level < req.MinLevel {
		return deny(CodeInsufficientLevel)
	}
	if s.SubscriptionExpiresAt != nil && s.SubscriptionExpiresAt.Before(now) {
		return deny(CodeSubscriptionExpired)
	}
	return Allow
}
