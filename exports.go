package circulate

import (
	"github.com/xraph/circulate/reservation"
	"github.com/xraph/circulate/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Condition is re-exported from reservation package.
type Condition = reservation.Condition

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	GBP  = types.GBP
	Zero = types.Zero
)

// Re-export return conditions
const (
	ConditionGood    = reservation.ConditionGood
	ConditionDamaged = reservation.ConditionDamaged
)
