// Package storetest runs engine scenarios against any store.Store backend.
//
// Backend packages call Run from their tests with a function that opens a
// fresh, migrated store, so every backend is held to the same lending and
// progression behavior.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/circulate"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/item"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
	"github.com/xraph/circulate/store"
	"github.com/xraph/circulate/types"
)

// Opener returns an empty, migrated store. It registers its own cleanup.
type Opener func(t *testing.T) store.Store

// Run executes every scenario as a subtest, each on a fresh store.
func Run(t *testing.T, open Opener) {
	t.Helper()
	scenarios := []struct {
		name string
		fn   func(*testing.T, Opener)
	}{
		{"ConcurrentReserveHasOneWinner", concurrentReserve},
		{"ReserveGuards", reserveGuards},
		{"TimesRoundTrip", timesRoundTrip},
		{"SweepOverdueIsIdempotent", sweepOverdue},
		{"ReturnFreesItem", returnFreesItem},
		{"ReturnTwiceIsDenied", returnTwice},
		{"ApplyEntryDeduplicates", applyEntry},
		{"CachedAvailability", cachedAvailability},
	}
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) { sc.fn(t, open) })
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	engine *circulate.Engine
	store  store.Store
	clock  *clock
}

func newHarness(t *testing.T, open Opener) *harness {
	t.Helper()
	clk := &clock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
	s := open(t)
	return &harness{
		engine: circulate.New(s, circulate.WithClock(clk.Now)),
		store:  s,
		clock:  clk,
	}
}

func (h *harness) item(t *testing.T) *item.Item {
	t.Helper()
	i := &item.Item{
		Name:             "Drill",
		Category:         "tools",
		ReplacementValue: circulate.USD(15000),
		RiskTier:         item.RiskLow,
		MinLevel:         1,
	}
	require.NoError(t, h.engine.RegisterItem(context.Background(), i))
	return i
}

func requireDenied(t *testing.T, err error, reason string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, circulate.IsDenied(err), "expected denial, got %v", err)
	var de *circulate.DeniedError
	require.ErrorAs(t, err, &de)
	require.Equal(t, reason, de.Reason)
}

func concurrentReserve(t *testing.T, open Opener) {
	h := newHarness(t, open)
	ctx := context.Background()
	it := h.item(t)

	const n = 8
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for i := range n {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			<-start
			_, err := h.engine.Reserve(ctx, user, it.ID, 7)
			switch {
			case err == nil:
				wins.Add(1)
			case circulate.IsConflict(err):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error for %s: %v", user, err)
			}
		}(fmt.Sprintf("user-%d", i))
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, n-1, conflicts.Load())

	rs, err := h.engine.ListReservations(ctx, reservation.ListOpts{ItemID: it.ID})
	require.NoError(t, err)
	require.Len(t, rs, 1)

	available, err := h.store.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.False(t, available)
}

func reserveGuards(t *testing.T, open Opener) {
	h := newHarness(t, open)
	ctx := context.Background()
	a, b := h.item(t), h.item(t)
	guard := reservation.Guard{MaxActive: 1}
	now := h.clock.Now()

	newRsv := func(itemID id.ItemID, borrower string) *reservation.Reservation {
		return &reservation.Reservation{
			Entity:        types.NewEntityAt(now),
			ID:            id.NewReservationID(),
			ItemID:        itemID,
			BorrowerID:    borrower,
			Status:        reservation.StatusActive,
			HandoverToken: id.NewHandoverToken(),
			DueAt:         now.Add(72 * time.Hour),
		}
	}

	require.NoError(t, h.store.Reserve(ctx, newRsv(a.ID, "u1"), guard))
	require.ErrorIs(t, h.store.Reserve(ctx, newRsv(a.ID, "u2"), guard), circulate.ErrItemUnavailable)
	require.ErrorIs(t, h.store.Reserve(ctx, newRsv(b.ID, "u1"), guard), circulate.ErrLimitExceeded)
	require.ErrorIs(t, h.store.Reserve(ctx, newRsv(id.NewItemID(), "u3"), guard), circulate.ErrItemNotFound)

	// A free item with the borrower over the limit is reported as the limit.
	available, err := h.store.IsAvailable(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, available)
}

func timesRoundTrip(t *testing.T, open Opener) {
	h := newHarness(t, open)
	ctx := context.Background()
	it := h.item(t)

	r, err := h.engine.Reserve(ctx, "ana", it.ID, 7)
	require.NoError(t, err)

	got, err := h.engine.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, r.DueAt.Equal(got.DueAt), "due_at %v != %v", got.DueAt, r.DueAt)
	require.True(t, r.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, r.CreatedAt)
	require.Nil(t, got.ReturnedAt)

	byToken, err := h.store.GetReservationByToken(ctx, r.HandoverToken)
	require.NoError(t, err)
	require.Equal(t, r.ID, byToken.ID)

	i, err := h.engine.GetItem(ctx, it.ID)
	require.NoError(t, err)
	require.True(t, it.CreatedAt.Equal(i.CreatedAt))
}

func sweepOverdue(t *testing.T, open Opener) {
	h := newHarness(t, open)
	ctx := context.Background()
	it, other := h.item(t), h.item(t)

	r, err := h.engine.Reserve(ctx, "ivy", it.ID, 2)
	require.NoError(t, err)

	h.clock.Advance(3 * 24 * time.Hour)
	n, err := h.engine.SweepOverdue(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = h.engine.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := h.engine.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, reservation.StatusOverdue, got.Status)

	available, err := h.store.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.False(t, available)

	_, err = h.engine.Reserve(ctx, "ivy", other.ID, 2)
	requireDenied(t, err, "limit exceeded")
}

func returnFreesItem(t *testing.T, open Opener) {
	h := newHarness(t, open)
	ctx := context.Background()
	it := h.item(t)

	r, err := h.engine.Reserve(ctx, "bo", it.ID, 7)
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)
	res, err := h.engine.Return(ctx, r.ID, circulate.ConditionGood, "")
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, reservation.StatusReturned, res.Reservation.Status)
	require.NotNil(t, res.Reservation.ReturnedAt)
	require.Equal(t, event.TypeItemReturned, res.Event.Type)

	available, err := h.store.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.True(t, available)

	pending, err := h.store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending, "delivered events leave the outbox")

	_, err = h.engine.Reserve(ctx, "cy", it.ID, 7)
	require.NoError(t, err)
}

func returnTwice(t *testing.T, open Opener) {
	h := newHarness(t, open)
	ctx := context.Background()
	it := h.item(t)

	r, err := h.engine.Reserve(ctx, "dave", it.ID, 3)
	require.NoError(t, err)
	_, err = h.engine.Return(ctx, r.ID, circulate.ConditionGood, "")
	require.NoError(t, err)

	_, err = h.engine.Return(ctx, r.ID, circulate.ConditionGood, "")
	requireDenied(t, err, "already returned")
	require.ErrorIs(t, err, circulate.ErrAlreadyReturned)

	p, err := h.engine.Profile(ctx, "dave")
	require.NoError(t, err)
	require.Equal(t, progression.DefaultTrust+2, p.TrustScore, "second return must not apply progression")
}

func applyEntry(t *testing.T, open Opener) {
	h := newHarness(t, open)
	ctx := context.Background()
	require.NoError(t, h.store.CreateProfile(ctx, progression.NewProfile("u1", h.clock.Now())))

	entry := &progression.Entry{
		ID:         id.NewEntryID(),
		UserID:     "u1",
		EventKey:   "evt_1:u1",
		Action:     progression.ActionAdminLower,
		TrustDelta: -500,
		Points:     -20,
		CreatedAt:  h.clock.Now(),
	}
	p, err := h.store.ApplyEntry(ctx, entry)
	require.NoError(t, err)
	require.Equal(t, progression.MinTrust, p.TrustScore)
	require.Equal(t, int64(0), p.Points)

	again := *entry
	again.ID = id.NewEntryID()
	_, err = h.store.ApplyEntry(ctx, &again)
	require.ErrorIs(t, err, progression.ErrAlreadyApplied)

	raised, err := h.store.RaiseLevel(ctx, "u1", 3, h.clock.Now())
	require.NoError(t, err)
	require.True(t, raised)
	raised, err = h.store.RaiseLevel(ctx, "u1", 2, h.clock.Now())
	require.NoError(t, err)
	require.False(t, raised)

	entries, err := h.store.ListEntries(ctx, "u1", progression.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func cachedAvailability(t *testing.T, open Opener) {
	h := newHarness(t, open)
	ctx := context.Background()
	itemID := h.item(t).ID

	_, err := h.store.GetCachedAvailability(ctx, itemID)
	require.ErrorIs(t, err, circulate.ErrCacheMiss)

	require.NoError(t, h.store.SetCachedAvailability(ctx, itemID, true, time.Minute))
	ok, err := h.store.GetCachedAvailability(ctx, itemID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, h.store.InvalidateAvailability(ctx, itemID))
	_, err = h.store.GetCachedAvailability(ctx, itemID)
	require.ErrorIs(t, err, circulate.ErrCacheMiss)
}
