package progression

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProfileNotFound = errors.New("circulate: profile not found")
	ErrProfileExists   = errors.New("circulate: profile already exists")
	ErrAlreadyApplied  = errors.New("circulate: progression entry already applied")
	ErrUnknownAction   = errors.New("circulate: unknown progression action")
)

// Store persists profiles and the progression journal.
type Store interface {
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// ApplyEntry journals e and applies it to the profile in one unit:
	// trust = clamp(trust + e.TrustDelta), points = max(points + e.Points, 0).
	// A second entry with the same EventKey fails with ErrAlreadyApplied.
	ApplyEntry(ctx context.Context, e *Entry) (*Profile, error)
	// RaiseLevel sets the level only if it is higher than the stored one.
	RaiseLevel(ctx context.Context, userID string, level int, at time.Time) (bool, error)
	ListEntries(ctx context.Context, userID string, opts ListOpts) ([]*Entry, error)
}

// ListOpts pages ListEntries.
type ListOpts struct {
	Limit  int
	Offset int
}
