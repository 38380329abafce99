// Package item defines the lendable items tracked by the resource ledger.
package item

import (
	"fmt"

	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/types"
)

// RiskTier ranks how much damage an item can do (or suffer) in untrained
// hands. Tiers are totally ordered: low < medium < high.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Rank returns the ordinal of the tier, or -1 for an unknown tier.
func (r RiskTier) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return -1
	}
}

// Valid reports whether r is a known tier.
func (r RiskTier) Valid() bool { return r.Rank() >= 0 }

// Exceeds reports whether r ranks above other.
func (r RiskTier) Exceeds(other RiskTier) bool { return r.Rank() > other.Rank() }

// ParseRiskTier converts a string into a RiskTier.
func ParseRiskTier(s string) (RiskTier, error) {
	r := RiskTier(s)
	if !r.Valid() {
		return "", fmt.Errorf("item: unknown risk tier %q", s)
	}
	return r, nil
}

// Level bounds for MinLevel.
const (
	MinUserLevel = 1
	MaxUserLevel = 5
)

// Item is a physical object in the shared pool.
//
// Available is denormalized: it is false exactly when a reservation in
// status active or overdue exists for the item. Only the reservation
// coordinator flips it.
type Item struct {
	types.Entity
	ID               id.ItemID         `json:"id"`
	Name             string            `json:"name"`
	Category         string            `json:"category"`
	ReplacementValue types.Money       `json:"replacement_value"`
	RiskTier         RiskTier          `json:"risk_tier"`
	MinLevel         int               `json:"min_level"`
	Available        bool              `json:"available"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Requirement is the slice of an item the eligibility evaluator looks at.
type Requirement struct {
	RiskTier RiskTier
	MinLevel int
}

// Requirement returns the access requirements of the item.
func (i *Item) Requirement() Requirement {
	return Requirement{RiskTier: i.RiskTier, MinLevel: i.MinLevel}
}

// Validate checks catalog fields.
func (i *Item) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("item: name is required")
	}
	if !i.RiskTier.Valid() {
		return fmt.Errorf("item: unknown risk tier %q", i.RiskTier)
	}
	if i.MinLevel < MinUserLevel || i.MinLevel > MaxUserLevel {
		return fmt.Errorf("item: min level %d outside [%d, %d]", i.MinLevel, MinUserLevel, MaxUserLevel)
	}
	if i.ReplacementValue.IsNegative() {
		return fmt.Errorf("item: replacement value must not be negative")
	}
	return nil
}
