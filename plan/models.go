// Package plan defines the subscription tiers that bound what a member may
// borrow: how many items at once, how risky, and how fast points accrue.
package plan

import (
	"fmt"

	"github.com/xraph/circulate/item"
)

// Tier names a subscription plan.
type Tier string

const (
	TierBasic     Tier = "basic"
	TierMaker     Tier = "maker"
	TierInnovator Tier = "innovator"
)

// Plan carries the limits of a tier.
type Plan struct {
	Tier        Tier          `json:"tier"`
	Name        string        `json:"name"`
	MaxItems    int           `json:"max_items"`
	MaxRiskTier item.RiskTier `json:"max_risk_tier"`
	// PointMultiplierPct scales awarded points, in percent.
	PointMultiplierPct int `json:"point_multiplier_pct"`
}

// Allows reports whether the plan permits borrowing an item of tier r.
func (p Plan) Allows(r item.RiskTier) bool {
	return !r.Exceeds(p.MaxRiskTier)
}

// Validate checks a plan definition.
func (p Plan) Validate() error {
	if p.Tier == "" {
		return fmt.Errorf("plan: tier is required")
	}
	if p.MaxItems < 0 {
		return fmt.Errorf("plan %s: max items must not be negative", p.Tier)
	}
	if !p.MaxRiskTier.Valid() {
		return fmt.Errorf("plan %s: unknown risk tier %q", p.Tier, p.MaxRiskTier)
	}
	if p.PointMultiplierPct <= 0 {
		return fmt.Errorf("plan %s: multiplier must be positive", p.Tier)
	}
	return nil
}
