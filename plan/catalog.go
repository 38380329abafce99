package plan

import "github.com/xraph/circulate/item"

// Catalog maps tiers to their plans.
type Catalog map[Tier]Plan

// Defaults returns the standard BASIC / MAKER / INNOVATOR catalog.
func Defaults() Catalog {
	return Catalog{
		TierBasic: {
			Tier:               TierBasic,
			Name:               "Basic",
			MaxItems:           1,
			MaxRiskTier:        item.RiskLow,
			PointMultiplierPct: 100,
		},
		TierMaker: {
			Tier:               TierMaker,
			Name:               "Maker",
			MaxItems:           3,
			MaxRiskTier:        item.RiskMedium,
			PointMultiplierPct: 150,
		},
		TierInnovator: {
			Tier:               TierInnovator,
			Name:               "Innovator",
			MaxItems:           5,
			MaxRiskTier:        item.RiskHigh,
			PointMultiplierPct: 200,
		},
	}
}

// Lookup returns the plan for tier, falling back to the basic plan for an
// unknown tier.
func (c Catalog) Lookup(tier Tier) (Plan, bool) {
	if p, ok := c[tier]; ok {
		return p, true
	}
	return c[TierBasic], false
}

// Validate checks every plan in the catalog.
func (c Catalog) Validate() error {
	for _, p := range c {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
