package progression

import (
	"github.com/xraph/circulate/reservation"
)

// Rule is the trust delta and base points attached to an action.
type Rule struct {
	TrustDelta int   `json:"trust_delta"`
	BasePoints int64 `json:"base_points"`
}

// Rules maps actions to their rules.
type Rules map[Action]Rule

// DefaultRules returns the canonical deltas.
func DefaultRules() Rules {
	return Rules{
		ActionEarlyReturn:           {TrustDelta: 3, BasePoints: 15},
		ActionOnTimeReturn:          {TrustDelta: 2, BasePoints: 10},
		ActionLateReturn:            {TrustDelta: -5},
		ActionVeryLateReturn:        {TrustDelta: -15},
		ActionDamagedItem:           {TrustDelta: -10},
		ActionLostItem:              {TrustDelta: -50},
		ActionCommunityContribution: {TrustDelta: 5, BasePoints: 25},
		ActionAdminRaise:            {TrustDelta: 20},
		ActionAdminLower:            {TrustDelta: -20},
	}
}

// Thresholds holds the minimum points for each level; index 0 is level 1.
type Thresholds []int64

// DefaultThresholds returns the standard level ladder.
func DefaultThresholds() Thresholds {
	return Thresholds{0, 100, 300, 700, 1500}
}

// LevelFor returns the largest level whose threshold points reaches.
func (t Thresholds) LevelFor(points int64) int {
	level := MinLevel
	for i, need := range t {
		if points >= need {
			level = i + 1
		}
	}
	return min(level, MaxLevel)
}

// ReturnActions lists the actions a return triggers. A damaged return
// forfeits the early or on-time bonus; lateness penalties still apply.
func ReturnActions(cond reservation.Condition, t reservation.Timeliness) []Action {
	damaged := cond == reservation.ConditionDamaged
	var actions []Action

	switch t {
	case reservation.TimelinessEarly:
		if !damaged {
			actions = append(actions, ActionEarlyReturn)
		}
	case reservation.TimelinessOnTime:
		if !damaged {
			actions = append(actions, ActionOnTimeReturn)
		}
	case reservation.TimelinessLate:
		actions = append(actions, ActionLateReturn)
	case reservation.TimelinessVeryLate:
		actions = append(actions, ActionVeryLateReturn)
	}

	if damaged {
		actions = append(actions, ActionDamagedItem)
	}
	return actions
}
