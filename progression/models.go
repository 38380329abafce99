// Package progression tracks member reputation: a bounded trust score,
// accumulated points and a one-way level derived from points.
//
// Every mutation is recorded as an Entry keyed by an idempotency key, so
// redelivering the same lifecycle event never applies it twice.
package progression

import (
	"time"

	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/types"
)

// Trust score bounds.
const (
	MinTrust     = 0
	MaxTrust     = 200
	DefaultTrust = 100
)

// Level bounds.
const (
	MinLevel = 1
	MaxLevel = 5
)

// ClampTrust bounds a trust score to [MinTrust, MaxTrust].
func ClampTrust(score int) int {
	return min(max(score, MinTrust), MaxTrust)
}

// ScalePoints applies a percentage multiplier to base points, flooring the
// result. Non-positive bases are returned unchanged.
func ScalePoints(base int64, multiplierPct int) int64 {
	if base <= 0 {
		return base
	}
	return base * int64(multiplierPct) / 100
}

// Profile is a member's progression state.
type Profile struct {
	types.Entity
	UserID     string `json:"user_id"`
	Level      int    `json:"level"`
	TrustScore int    `json:"trust_score"`
	Points     int64  `json:"points"`
}

// NewProfile returns the starting profile for a member.
func NewProfile(userID string, at time.Time) *Profile {
	return &Profile{
		Entity:     types.NewEntityAt(at),
		UserID:     userID,
		Level:      MinLevel,
		TrustScore: DefaultTrust,
	}
}

// Action names a progression-affecting occurrence.
type Action string

const (
	ActionEarlyReturn           Action = "early_return"
	ActionOnTimeReturn          Action = "on_time_return"
	ActionLateReturn            Action = "late_return"
	ActionVeryLateReturn        Action = "very_late_return"
	ActionDamagedItem           Action = "damaged_item"
	ActionLostItem              Action = "lost_item"
	ActionCommunityContribution Action = "community_contribution"
	ActionAdminRaise            Action = "admin_raise"
	ActionAdminLower            Action = "admin_lower"
	ActionPointsAdjustment      Action = "points_adjustment"
)

// Entry is one journaled mutation of a profile. TrustDelta and Points are
// the requested deltas; the store clamps when applying them.
type Entry struct {
	ID         id.EntryID `json:"id"`
	UserID     string     `json:"user_id"`
	EventKey   string     `json:"event_key"`
	Action     Action     `json:"action"`
	TrustDelta int        `json:"trust_delta"`
	Points     int64      `json:"points"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Change reports the outcome of applying an entry.
type Change struct {
	UserID        string `json:"user_id"`
	Action        Action `json:"action"`
	EventKey      string `json:"event_key"`
	TrustDelta    int    `json:"trust_delta"`
	TrustScore    int    `json:"trust_score"`
	PointsAwarded int64  `json:"points_awarded"`
	Points        int64  `json:"points"`
	PreviousLevel int    `json:"previous_level"`
	Level         int    `json:"level"`
}

// LeveledUp reports whether the change raised the member's level.
func (c *Change) LeveledUp() bool { return c.Level > c.PreviousLevel }
