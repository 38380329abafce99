package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
)

// Listener receives progression notifications after they are persisted.
type Listener interface {
	TrustChanged(ctx context.Context, c *Change)
	LeveledUp(ctx context.Context, c *Change)
}

// Engine applies progression rules. It only knows about profiles and the
// journal; reservation state is delivered to it as events.
type Engine struct {
	store      Store
	rules      Rules
	thresholds Thresholds
	listener   Listener
	logger     *slog.Logger
	clock      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the action rules.
func WithRules(r Rules) Option {
	return func(e *Engine) { e.rules = r }
}

// WithThresholds replaces the level ladder.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithListener sets the notification listener.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listener = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates a progression engine over s.
func NewEngine(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		rules:      DefaultRules(),
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Profile returns a member's profile.
func (e *Engine) Profile(ctx context.Context, userID string) (*Profile, error) {
	return e.store.GetProfile(ctx, userID)
}

// EnsureProfile returns the member's profile, creating the starting one if
// none exists.
func (e *Engine) EnsureProfile(ctx context.Context, userID string) (*Profile, error) {
	p, err := e.store.GetProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	p = NewProfile(userID, e.clock())
	if err := e.store.CreateProfile(ctx, p); err != nil {
		if errors.Is(err, ErrProfileExists) {
			return e.store.GetProfile(ctx, userID)
		}
		return nil, err
	}
	return p, nil
}

// Entries returns the journal of a member, newest first.
func (e *Engine) Entries(ctx context.Context, userID string, opts ListOpts) ([]*Entry, error) {
	return e.store.ListEntries(ctx, userID, opts)
}

// HandleReturn applies every action triggered by a return event. It is safe
// to call repeatedly with the same event: actions already journaled are
// skipped, so a partially applied event can be redelivered.
func (e *Engine) HandleReturn(ctx context.Context, evt *event.Event) ([]*Change, error) {
	if evt.Type != event.TypeItemReturned {
		return nil, fmt.Errorf("progression: unexpected event type %q", evt.Type)
	}

	var changes []*Change
	for _, action := range ReturnActions(evt.Condition, evt.Timeliness) {
		key := evt.ID.String() + ":" + string(action)
		c, err := e.Apply(ctx, evt.UserID, action, evt.MultiplierPct, key, "reservation "+evt.ReservationID.String())
		if err != nil {
			return changes, err
		}
		if c != nil {
			changes = append(changes, c)
		}
	}
	return changes, nil
}

// Apply journals action for a member. Points are scaled by multiplierPct.
// It returns a nil change when eventKey was already applied.
func (e *Engine) Apply(ctx context.Context, userID string, action Action, multiplierPct int, eventKey, reason string) (*Change, error) {
	rule, ok := e.rules[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return e.apply(ctx, &Entry{
		UserID:     userID,
		EventKey:   eventKey,
		Action:     action,
		TrustDelta: rule.TrustDelta,
		Points:     ScalePoints(rule.BasePoints, multiplierPct),
		Reason:     reason,
	})
}

// AdjustPoints adds delta points to a member without touching trust. The
// delta may be negative; points never drop below zero and the level is
// never lowered.
func (e *Engine) AdjustPoints(ctx context.Context, userID string, delta int64, eventKey, reason string) (*Change, error) {
	return e.apply(ctx, &Entry{
		UserID:   userID,
		EventKey: eventKey,
		Action:   ActionPointsAdjustment,
		Points:   delta,
		Reason:   reason,
	})
}

func (e *Engine) apply(ctx context.Context, entry *Entry) (*Change, error) {
	if entry.EventKey == "" {
		entry.EventKey = id.NewEntryID().String()
	}
	entry.ID = id.NewEntryID()
	entry.CreatedAt = e.clock().UTC()

	p, err := e.store.ApplyEntry(ctx, entry)
	if err != nil {
		if errors.Is(err, ErrAlreadyApplied) {
			e.logger.Debug("progression entry already applied",
				"user_id", entry.UserID,
				"event_key", entry.EventKey,
			)
			return e.catchUpLevel(ctx, entry)
		}
		return nil, err
	}

	change := &Change{
		UserID:        p.UserID,
		Action:        entry.Action,
		EventKey:      entry.EventKey,
		TrustDelta:    entry.TrustDelta,
		TrustScore:    p.TrustScore,
		PointsAwarded: entry.Points,
		Points:        p.Points,
		PreviousLevel: p.Level,
		Level:         p.Level,
	}

	if next := e.thresholds.LevelFor(p.Points); next > p.Level {
		raised, err := e.store.RaiseLevel(ctx, p.UserID, next, entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		if raised {
			change.Level = next
		}
	}

	if e.listener != nil {
		if change.TrustDelta != 0 {
			e.listener.TrustChanged(ctx, change)
		}
		if change.LeveledUp() {
			e.listener.LeveledUp(ctx, change)
		}
	}

	e.logger.Debug("progression applied",
		"user_id", change.UserID,
		"action", change.Action,
		"trust", change.TrustScore,
		"points", change.Points,
		"level", change.Level,
	)
	return change, nil
}

// catchUpLevel finishes a replayed entry whose level raise did not land the
// first time. It reports a level-only change, or nil when the level is
// already current.
func (e *Engine) catchUpLevel(ctx context.Context, entry *Entry) (*Change, error) {
	p, err := e.store.GetProfile(ctx, entry.UserID)
	if err != nil {
		return nil, err
	}
	next := e.thresholds.LevelFor(p.Points)
	if next <= p.Level {
		return nil, nil //nolint:nilnil // a replayed entry has no change to report
	}
	raised, err := e.store.RaiseLevel(ctx, p.UserID, next, e.clock().UTC())
	if err != nil {
		return nil, err
	}
	if !raised {
		return nil, nil //nolint:nilnil // raised concurrently
	}

	change := &Change{
		UserID:        p.UserID,
		Action:        entry.Action,
		EventKey:      entry.EventKey,
		TrustScore:    p.TrustScore,
		Points:        p.Points,
		PreviousLevel: p.Level,
		Level:         next,
	}
	if e.listener != nil {
		e.listener.LeveledUp(ctx, change)
	}
	e.logger.Info("progression level recovered on replay",
		"user_id", change.UserID,
		"event_key", change.EventKey,
		"level", change.Level,
	)
	return change, nil
}
