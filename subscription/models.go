package subscription

import (
	"time"

	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/plan"
	"github.com/xraph/circulate/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
)

// Subscription binds a member to a plan tier until ExpiresAt. A nil
// ExpiresAt never expires.
type Subscription struct {
	types.Entity
	ID         id.SubscriptionID `json:"id"`
	UserID     string            `json:"user_id"`
	Tier       plan.Tier         `json:"tier"`
	Status     Status            `json:"status"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	CanceledAt *time.Time        `json:"canceled_at,omitempty"`
}

// Expired reports whether the subscription lapsed before now.
func (s *Subscription) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}
