package subscription

import (
	"context"
	"time"

	"github.com/xraph/circulate/id"
)

type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	// GetActiveSubscription returns the most recent active subscription of
	// a user, expired or not. Expiry is judged by the eligibility evaluator.
	GetActiveSubscription(ctx context.Context, userID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error
}
