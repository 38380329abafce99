package plan

import (
	"testing"

	"github.com/xraph/circulate/item"
)

func TestDefaults(t *testing.T) {
	c := Defaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}

	tests := []struct {
		tier     Tier
		maxItems int
		maxRisk  item.RiskTier
		mult     int
	}{
		{TierBasic, 1, item.RiskLow, 100},
		{TierMaker, 3, item.RiskMedium, 150},
		{TierInnovator, 5, item.RiskHigh, 200},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			p, ok := c.Lookup(tt.tier)
			if !ok {
				t.Fatalf("tier %s missing", tt.tier)
			}
			if p.MaxItems != tt.maxItems || p.MaxRiskTier != tt.maxRisk || p.PointMultiplierPct != tt.mult {
				t.Errorf("unexpected plan %+v", p)
			}
		})
	}
}

func TestLookupUnknownFallsBackToBasic(t *testing.T) {
	p, ok := Defaults().Lookup("platinum")
	if ok {
		t.Error("unknown tier reported as found")
	}
	if p.Tier != TierBasic {
		t.Errorf("fallback tier = %s", p.Tier)
	}
}

func TestAllows(t *testing.T) {
	maker := Defaults()[TierMaker]
	if !maker.Allows(item.RiskLow) || !maker.Allows(item.RiskMedium) {
		t.Error("maker should allow low and medium")
	}
	if maker.Allows(item.RiskHigh) {
		t.Error("maker should not allow high")
	}
}
