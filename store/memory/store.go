// Package memory implements store.Store in process memory. A single mutex
// guards all state, so every method is linearizable; it backs tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/circulate"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/item"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
	"github.com/xraph/circulate/store"
	"github.com/xraph/circulate/subscription"
)

var _ store.Store = (*Store)(nil)

type cacheEntry struct {
	available bool
	expiresAt time.Time
}

type Store struct {
	mu    sync.Mutex
	clock func() time.Time

	items         map[string]*item.Item
	reservations  map[string]*reservation.Reservation
	tokens        map[string]string // handover token -> reservation id
	holders       map[string]string // item id -> holding reservation id
	subscriptions map[string]*subscription.Subscription
	profiles      map[string]*progression.Profile
	entries       []*progression.Entry
	entryKeys     map[string]struct{}
	events        []*event.Event
	cache         map[string]cacheEntry
	closed        bool
}

// Option configures a memory Store.
type Option func(*Store)

// WithClock sets the time source used for cache expiry.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

func New(opts ...Option) *Store {
	s := &Store{
		clock:         time.Now,
		items:         make(map[string]*item.Item),
		reservations:  make(map[string]*reservation.Reservation),
		tokens:        make(map[string]string),
		holders:       make(map[string]string),
		subscriptions: make(map[string]*subscription.Subscription),
		profiles:      make(map[string]*progression.Profile),
		entryKeys:     make(map[string]struct{}),
		cache:         make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Item Store
// ──────────────────────────────────────────────────

func (s *Store) CreateItem(_ context.Context, i *item.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[i.ID.String()]; exists {
		return circulate.ErrItemExists
	}
	cp := *i
	s.items[i.ID.String()] = &cp
	return nil
}

func (s *Store) GetItem(_ context.Context, itemID id.ItemID) (*item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.items[itemID.String()]
	if !ok {
		return nil, circulate.ErrItemNotFound
	}
	cp := *i
	return &cp, nil
}

func (s *Store) ListItems(_ context.Context, opts item.ListOpts) ([]*item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*item.Item, 0)
	for _, i := range s.items {
		if opts.Category != "" && i.Category != opts.Category {
			continue
		}
		if opts.AvailableOnly && !i.Available {
			continue
		}
		cp := *i
		result = append(result, &cp)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].ID.String() < result[b].ID.String() })
	return page(result, opts.Offset, opts.Limit), nil
}

// UpdateItem replaces catalog fields. The stored availability flag is kept.
func (s *Store) UpdateItem(_ context.Context, i *item.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[i.ID.String()]
	if !ok {
		return circulate.ErrItemNotFound
	}
	cp := *i
	cp.Available = existing.Available
	cp.CreatedAt = existing.CreatedAt
	s.items[i.ID.String()] = &cp
	return nil
}

func (s *Store) IsAvailable(_ context.Context, itemID id.ItemID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.items[itemID.String()]
	if !ok {
		return false, circulate.ErrItemNotFound
	}
	_, held := s.holders[itemID.String()]
	return i.Available && !held, nil
}

// ──────────────────────────────────────────────────
// Reservation Store
// ──────────────────────────────────────────────────

func (s *Store) Reserve(_ context.Context, r *reservation.Reservation, g reservation.Guard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.items[r.ItemID.String()]
	if !ok {
		return circulate.ErrItemNotFound
	}
	if _, held := s.holders[r.ItemID.String()]; held || !i.Available {
		return circulate.ErrItemUnavailable
	}
	if s.countActive(r.BorrowerID) >= g.MaxActive {
		return circulate.ErrLimitExceeded
	}
	if _, exists := s.reservations[r.ID.String()]; exists {
		return circulate.ErrReservationExists
	}
	if _, exists := s.tokens[r.HandoverToken]; exists {
		return circulate.ErrReservationExists
	}

	cp := *r
	s.reservations[r.ID.String()] = &cp
	s.tokens[r.HandoverToken] = r.ID.String()
	s.holders[r.ItemID.String()] = r.ID.String()
	i.Available = false
	i.UpdatedAt = r.CreatedAt
	return nil
}

func (s *Store) GetReservation(_ context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[rsvID.String()]
	if !ok {
		return nil, circulate.ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) GetReservationByToken(_ context.Context, token string) (*reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rid, ok := s.tokens[token]
	if !ok {
		return nil, circulate.ErrReservationNotFound
	}
	cp := *s.reservations[rid]
	return &cp, nil
}

func (s *Store) ListReservations(_ context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*reservation.Reservation, 0)
	for _, r := range s.reservations {
		if opts.BorrowerID != "" && r.BorrowerID != opts.BorrowerID {
			continue
		}
		if !opts.ItemID.IsNil() && r.ItemID.String() != opts.ItemID.String() {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].CreatedAt.After(result[b].CreatedAt) })
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CountActiveReservations(_ context.Context, borrowerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countActive(borrowerID), nil
}

func (s *Store) countActive(borrowerID string) int {
	n := 0
	for _, r := range s.reservations {
		if r.BorrowerID == borrowerID && r.Status.Holding() {
			n++
		}
	}
	return n
}

func (s *Store) ConfirmHandover(_ context.Context, rsvID id.ReservationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[rsvID.String()]
	if !ok {
		return circulate.ErrReservationNotFound
	}
	if r.Status != reservation.StatusActive {
		return circulate.ErrReservationNotActive
	}
	if r.HandedOverAt != nil {
		return circulate.ErrHandoverConfirmed
	}
	t := at.UTC()
	r.HandedOverAt = &t
	r.UpdatedAt = t
	return nil
}

func (s *Store) MarkOverdue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.reservations {
		if r.Status == reservation.StatusActive && r.DueAt.Before(now) {
			r.Status = reservation.StatusOverdue
			r.UpdatedAt = now.UTC()
			n++
		}
	}
	return n, nil
}

func (s *Store) ReturnReservation(_ context.Context, rsvID id.ReservationID, in reservation.ReturnInput, evt *event.Event) (*reservation.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[rsvID.String()]
	if !ok {
		return nil, circulate.ErrReservationNotFound
	}
	if !r.Status.Holding() {
		return nil, circulate.ErrAlreadyReturned
	}

	at := in.ReturnedAt.UTC()
	r.Status = reservation.StatusReturned
	r.ReturnedAt = &at
	r.Condition = in.Condition
	r.ConditionNotes = in.Notes
	r.UpdatedAt = at

	delete(s.holders, r.ItemID.String())
	if i, ok := s.items[r.ItemID.String()]; ok {
		i.Available = true
		i.UpdatedAt = at
	}

	ecp := *evt
	s.events = append(s.events, &ecp)

	cp := *r
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Subscription Store
// ──────────────────────────────────────────────────

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return circulate.ErrSubscriptionExists
	}
	cp := *sub
	s.subscriptions[sub.ID.String()] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return nil, circulate.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *Store) GetActiveSubscription(_ context.Context, userID string) (*subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID != userID || sub.Status != subscription.StatusActive {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, circulate.ErrNoActiveSubscription
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) CancelSubscription(_ context.Context, subID id.SubscriptionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return circulate.ErrSubscriptionNotFound
	}
	if sub.Status == subscription.StatusCanceled {
		return circulate.ErrSubscriptionCanceled
	}
	t := at.UTC()
	sub.Status = subscription.StatusCanceled
	sub.CanceledAt = &t
	sub.UpdatedAt = t
	return nil
}

// ──────────────────────────────────────────────────
// Progression Store
// ──────────────────────────────────────────────────

func (s *Store) CreateProfile(_ context.Context, p *progression.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.UserID]; exists {
		return progression.ErrProfileExists
	}
	cp := *p
	s.profiles[p.UserID] = &cp
	return nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (*progression.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, progression.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ApplyEntry(_ context.Context, e *progression.Entry) (*progression.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[e.UserID]
	if !ok {
		return nil, progression.ErrProfileNotFound
	}
	if _, dup := s.entryKeys[e.EventKey]; dup {
		return nil, progression.ErrAlreadyApplied
	}

	ecp := *e
	s.entries = append(s.entries, &ecp)
	s.entryKeys[e.EventKey] = struct{}{}

	p.TrustScore = progression.ClampTrust(p.TrustScore + e.TrustDelta)
	p.Points = max(p.Points+e.Points, 0)
	p.UpdatedAt = e.CreatedAt
	cp := *p
	return &cp, nil
}

func (s *Store) RaiseLevel(_ context.Context, userID string, level int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return false, progression.ErrProfileNotFound
	}
	if level <= p.Level {
		return false, nil
	}
	p.Level = level
	p.UpdatedAt = at.UTC()
	return true, nil
}

func (s *Store) ListEntries(_ context.Context, userID string, opts progression.ListOpts) ([]*progression.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*progression.Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if e := s.entries[i]; e.UserID == userID {
			cp := *e
			result = append(result, &cp)
		}
	}
	return page(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Outbox Store
// ──────────────────────────────────────────────────

func (s *Store) PendingEvents(_ context.Context, limit int) ([]*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*event.Event, 0)
	for _, e := range s.events {
		if e.DeliveredAt != nil {
			continue
		}
		cp := *e
		result = append(result, &cp)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) MarkEventDelivered(_ context.Context, evtID id.EventID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if e.ID.String() == evtID.String() {
			if e.DeliveredAt == nil {
				t := at.UTC()
				e.DeliveredAt = &t
			}
			return nil
		}
	}
	return circulate.ErrEventNotFound
}

// ──────────────────────────────────────────────────
// Availability cache
// ──────────────────────────────────────────────────

func (s *Store) GetCachedAvailability(_ context.Context, itemID id.ItemID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache[itemID.String()]
	if !ok || !s.clock().Before(e.expiresAt) {
		return false, circulate.ErrCacheMiss
	}
	return e.available, nil
}

func (s *Store) SetCachedAvailability(_ context.Context, itemID id.ItemID, available bool, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[itemID.String()] = cacheEntry{available: available, expiresAt: s.clock().Add(ttl)}
	return nil
}

func (s *Store) InvalidateAvailability(_ context.Context, itemID id.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, itemID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return circulate.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func page[T any](in []T, offset, limit int) []T {
	start := min(max(offset, 0), len(in))
	end := len(in)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return in[start:end]
}
