package circulate_test

import (
	"context"
	"errors"
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
	"github.com/xraph/circulate/plan"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
	"github.com/xraph/circulate/store/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	engine *circulate.Engine
	store  *memory.Store
	clock  *fakeClock
}

func newHarness(t *testing.T, opts ...circulate.Option) *harness {
	t.Helper()
	clk := newFakeClock()
	s := memory.New(memory.WithClock(clk.Now))
	opts = append([]circulate.Option{circulate.WithClock(clk.Now)}, opts...)
	return &harness{engine: circulate.New(s, opts...), store: s, clock: clk}
}

func (h *harness) item(t *testing.T, risk item.RiskTier, minLevel int) *item.Item {
	t.Helper()
	i := &item.Item{
		Name:             "Item " + string(risk),
		Category:         "tools",
		ReplacementValue: circulate.USD(15000),
		RiskTier:         risk,
		MinLevel:         minLevel,
	}
	require.NoError(t, h.engine.RegisterItem(context.Background(), i))
	return i
}

// holders counts holding reservations of an item.
func (h *harness) holders(t *testing.T, itemID id.ItemID) int {
	t.Helper()
	rs, err := h.engine.ListReservations(context.Background(), reservation.ListOpts{ItemID: itemID})
	require.NoError(t, err)
	n := 0
	for _, r := range rs {
		if r.Status.Holding() {
			n++
		}
	}
	return n
}

func requireDenied(t *testing.T, err error, reason string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, circulate.IsDenied(err), "expected denial, got %v", err)
	var de *circulate.DeniedError
	require.ErrorAs(t, err, &de)
	require.Equal(t, reason, de.Reason)
}

func TestConcurrentReserveHasOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	const n = 32
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
	require.Equal(t, 1, h.holders(t, it.ID))

	available, err := h.store.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.False(t, available)
}

func TestReserveDueTimeAndOnTimeReturn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	r, err := h.engine.Reserve(ctx, "alice", it.ID, 7)
	require.NoError(t, err)
	require.Equal(t, reservation.StatusActive, r.Status)
	require.Equal(t, r.CreatedAt.Add(7*24*time.Hour), r.DueAt)
	require.NotEmpty(t, r.HandoverToken)

	available, err := h.engine.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.False(t, available)

	// Past the halfway point but before due: on time.
	h.clock.Advance(5 * 24 * time.Hour)
	res, err := h.engine.Return(ctx, r.ID, circulate.ConditionGood, "")
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, reservation.StatusReturned, res.Reservation.Status)
	require.Equal(t, reservation.TimelinessOnTime, res.Event.Timeliness)
	require.False(t, res.Event.WasLate)

	p, err := h.engine.Profile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, progression.DefaultTrust+2, p.TrustScore)
	require.EqualValues(t, 10, p.Points)

	available, err = h.engine.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.True(t, available)
}

func TestEarlyReturnEarnsBonus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	_, err := h.engine.Subscribe(ctx, "bob", plan.TierInnovator, nil)
	require.NoError(t, err)

	r, err := h.engine.Reserve(ctx, "bob", it.ID, 10)
	require.NoError(t, err)

	h.clock.Advance(2 * 24 * time.Hour)
	res, err := h.engine.Return(ctx, r.ID, circulate.ConditionGood, "")
	require.NoError(t, err)
	require.Equal(t, reservation.TimelinessEarly, res.Event.Timeliness)

	p, err := h.engine.Profile(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, progression.DefaultTrust+3, p.TrustScore)
	require.EqualValues(t, 30, p.Points, "early return points scale with the innovator multiplier")
}

func TestDamagedLateReturn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	r, err := h.engine.Reserve(ctx, "carol", it.ID, 1)
	require.NoError(t, err)

	h.clock.Advance(5 * 24 * time.Hour)
	res, err := h.engine.Return(ctx, r.ID, circulate.ConditionDamaged, "cracked housing")
	require.NoError(t, err)
	require.Equal(t, reservation.TimelinessVeryLate, res.Event.Timeliness)
	require.True(t, res.Event.WasLate)
	require.Len(t, res.Changes, 2)
	require.Equal(t, "cracked housing", res.Reservation.ConditionNotes)

	p, err := h.engine.Profile(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, progression.DefaultTrust-15-10, p.TrustScore)
	require.Zero(t, p.Points)
}

func TestReturnTwiceIsDenied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

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

func TestInsufficientLevelScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 4)

	_, err := h.engine.RegisterUser(ctx, "erin")
	require.NoError(t, err)
	c, err := h.engine.AdjustPoints(ctx, "erin", 150, "migration")
	require.NoError(t, err)
	require.Equal(t, 2, c.Level)

	_, err = h.engine.Reserve(ctx, "erin", it.ID, 7)
	requireDenied(t, err, "insufficient level")

	require.Zero(t, h.holders(t, it.ID))
	available, err := h.engine.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.True(t, available)
}

func TestBasicPlanLimitScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.item(t, item.RiskLow, 1)
	b := h.item(t, item.RiskLow, 1)

	_, err := h.engine.Reserve(ctx, "frank", a.ID, 7)
	require.NoError(t, err)

	_, err = h.engine.Reserve(ctx, "frank", b.ID, 7)
	requireDenied(t, err, "limit exceeded")

	var de *circulate.DeniedError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "limit_exceeded", de.Code)
}

func TestRiskTierAndExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	risky := h.item(t, item.RiskHigh, 1)
	safe := h.item(t, item.RiskLow, 1)

	_, err := h.engine.Subscribe(ctx, "gina", plan.TierMaker, nil)
	require.NoError(t, err)
	_, err = h.engine.Reserve(ctx, "gina", risky.ID, 7)
	requireDenied(t, err, "risk tier not permitted")

	expires := h.clock.Now().Add(time.Hour)
	_, err = h.engine.Subscribe(ctx, "gina", plan.TierInnovator, &expires)
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)
	_, err = h.engine.Reserve(ctx, "gina", safe.ID, 7)
	requireDenied(t, err, "subscription expired")
}

func TestReserveValidatesInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	for _, days := range []int{0, -1, 31} {
		_, err := h.engine.Reserve(ctx, "hank", it.ID, days)
		require.True(t, circulate.IsInvalidInput(err), "days=%d: %v", days, err)
	}

	_, err := h.engine.Reserve(ctx, "hank", id.NewItemID(), 7)
	require.True(t, circulate.IsNotFound(err))
}

func TestSweepOverdueIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)
	other := h.item(t, item.RiskLow, 1)

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

	available, err := h.engine.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.False(t, available)

	// The overdue reservation still counts against the basic plan limit.
	_, err = h.engine.Reserve(ctx, "ivy", other.ID, 2)
	requireDenied(t, err, "limit exceeded")

	snap, err := h.engine.Snapshot(ctx, "ivy")
	require.NoError(t, err)
	require.Equal(t, 1, snap.ActiveReservations)
}

func TestHandoverTokenIsSingleUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	r, err := h.engine.Reserve(ctx, "jack", it.ID, 7)
	require.NoError(t, err)

	got, err := h.engine.ConfirmHandover(ctx, r.HandoverToken)
	require.NoError(t, err)
	require.NotNil(t, got.HandedOverAt)

	_, err = h.engine.ConfirmHandover(ctx, r.HandoverToken)
	requireDenied(t, err, "handover already confirmed")

	_, err = h.engine.ConfirmHandover(ctx, id.NewHandoverToken())
	require.True(t, circulate.IsNotFound(err))
}

func TestHandoverAfterReturnIsDenied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	r, err := h.engine.Reserve(ctx, "kim", it.ID, 7)
	require.NoError(t, err)
	_, err = h.engine.Return(ctx, r.ID, circulate.ConditionGood, "")
	require.NoError(t, err)

	_, err = h.engine.ConfirmHandover(ctx, r.HandoverToken)
	requireDenied(t, err, "reservation not active")
}

func TestAvailabilityCacheIsInvalidatedOnWrites(t *testing.T) {
	h := newHarness(t, circulate.WithAvailabilityCacheTTL(time.Hour))
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	available, err := h.engine.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.True(t, available)

	r, err := h.engine.Reserve(ctx, "lea", it.ID, 7)
	require.NoError(t, err)
	available, err = h.engine.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.False(t, available)

	_, err = h.engine.Return(ctx, r.ID, circulate.ConditionGood, "")
	require.NoError(t, err)
	available, err = h.engine.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.True(t, available)
}

// flakyStore fails progression writes until healed.
type flakyStore struct {
	*memory.Store
	broken atomic.Bool
}

func (s *flakyStore) ApplyEntry(ctx context.Context, e *progression.Entry) (*progression.Profile, error) {
	if s.broken.Load() {
		return nil, errors.New("journal unavailable")
	}
	return s.Store.ApplyEntry(ctx, e)
}

func TestOutboxRelayRedeliversFailedEvents(t *testing.T) {
	clk := newFakeClock()
	s := &flakyStore{Store: memory.New(memory.WithClock(clk.Now))}
	e := circulate.New(s, circulate.WithClock(clk.Now))
	ctx := context.Background()

	it := &item.Item{Name: "Ladder", RiskTier: item.RiskLow, MinLevel: 1}
	require.NoError(t, e.RegisterItem(ctx, it))
	r, err := e.Reserve(ctx, "mona", it.ID, 4)
	require.NoError(t, err)

	s.broken.Store(true)
	clk.Advance(3 * 24 * time.Hour)
	res, err := e.Return(ctx, r.ID, circulate.ConditionGood, "")
	require.NoError(t, err, "return commits even when progression delivery fails")
	require.False(t, res.Delivered)

	pending, err := s.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = e.RelayPending(ctx)
	require.Error(t, err)

	s.broken.Store(false)
	delivered, err := e.RelayPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, delivered)

	delivered, err = e.RelayPending(ctx)
	require.NoError(t, err)
	require.Zero(t, delivered)

	p, err := e.Profile(ctx, "mona")
	require.NoError(t, err)
	require.Equal(t, progression.DefaultTrust+2, p.TrustScore)
}

func TestRedeliveryDoesNotDoubleApply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	r, err := h.engine.Reserve(ctx, "nina", it.ID, 4)
	require.NoError(t, err)
	h.clock.Advance(3 * 24 * time.Hour)
	res, err := h.engine.Return(ctx, r.ID, circulate.ConditionGood, "")
	require.NoError(t, err)

	// Simulate a crash between applying progression and marking the event.
	replay := *res.Event
	replay.DeliveredAt = nil
	require.Equal(t, event.TypeItemReturned, replay.Type)

	entries, err := h.engine.Entries(ctx, "nina", progression.ListOpts{})
	require.NoError(t, err)
	before := len(entries)

	_, err = h.store.ApplyEntry(ctx, &progression.Entry{
		ID:       id.NewEntryID(),
		UserID:   "nina",
		EventKey: replay.ID.String() + ":" + string(progression.ActionOnTimeReturn),
		Action:   progression.ActionOnTimeReturn,
	})
	require.ErrorIs(t, err, progression.ErrAlreadyApplied)

	entries, err = h.engine.Entries(ctx, "nina", progression.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, before)
}

func TestProgressionOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Subscribe(ctx, "omar", plan.TierMaker, nil)
	require.NoError(t, err)
	_, err = h.engine.RegisterUser(ctx, "omar")
	require.NoError(t, err)

	c, err := h.engine.RecordContribution(ctx, "omar", "workshop-7", "ran a workshop")
	require.NoError(t, err)
	require.EqualValues(t, 37, c.PointsAwarded)
	require.Equal(t, progression.DefaultTrust+5, c.TrustScore)

	again, err := h.engine.RecordContribution(ctx, "omar", "workshop-7", "ran a workshop")
	require.NoError(t, err)
	require.Nil(t, again)

	c, err = h.engine.OverrideTrust(ctx, "omar", true, "community steward")
	require.NoError(t, err)
	require.Equal(t, progression.DefaultTrust+25, c.TrustScore)

	c, err = h.engine.OverrideTrust(ctx, "omar", false, "complaint")
	require.NoError(t, err)
	require.Equal(t, progression.DefaultTrust+5, c.TrustScore)

	_, err = h.engine.AdjustPoints(ctx, "omar", 0, "")
	require.True(t, circulate.IsInvalidInput(err))

	_, err = h.engine.OverrideTrust(ctx, "nobody", true, "")
	require.True(t, circulate.IsNotFound(err))
}

func TestReportLost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	r, err := h.engine.Reserve(ctx, "pia", it.ID, 7)
	require.NoError(t, err)

	c, err := h.engine.ReportLost(ctx, r.ID, "left on the bus")
	require.NoError(t, err)
	require.Equal(t, progression.DefaultTrust-50, c.TrustScore)

	c, err = h.engine.ReportLost(ctx, r.ID, "left on the bus")
	require.NoError(t, err)
	require.Nil(t, c)

	available, err := h.engine.IsAvailable(ctx, it.ID)
	require.NoError(t, err)
	require.False(t, available)
}

func TestUpdateItemKeepsAvailability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := h.item(t, item.RiskLow, 1)

	_, err := h.engine.Reserve(ctx, "quinn", it.ID, 7)
	require.NoError(t, err)

	upd := *it
	upd.Name = "Renamed"
	upd.Available = true
	require.NoError(t, h.engine.UpdateItem(ctx, &upd))
	require.False(t, upd.Available)

	got, err := h.engine.GetItem(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Name)
	require.False(t, got.Available)

	items, err := h.engine.ListItems(ctx, item.ListOpts{AvailableOnly: true})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestCancelSubscriptionFallsBackToBasic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sub, err := h.engine.Subscribe(ctx, "ruth", plan.TierInnovator, nil)
	require.NoError(t, err)
	snap, err := h.engine.Snapshot(ctx, "ruth")
	require.NoError(t, err)
	require.Equal(t, plan.TierInnovator, snap.Plan.Tier)

	require.NoError(t, h.engine.CancelSubscription(ctx, sub.ID))
	snap, err = h.engine.Snapshot(ctx, "ruth")
	require.NoError(t, err)
	require.Equal(t, plan.TierBasic, snap.Plan.Tier)
	require.Nil(t, snap.SubscriptionExpiresAt)

	err = h.engine.CancelSubscription(ctx, sub.ID)
	require.True(t, circulate.IsDenied(err))
}

func TestListRejectsNegativePaging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.item(t, item.RiskLow, 1)

	_, err := h.engine.ListItems(ctx, item.ListOpts{Offset: -1})
	require.True(t, circulate.IsInvalidInput(err), "got %v", err)

	_, err = h.engine.ListReservations(ctx, reservation.ListOpts{Limit: -5})
	require.True(t, circulate.IsInvalidInput(err), "got %v", err)

	_, err = h.engine.Entries(ctx, "alice", progression.ListOpts{Offset: -3})
	require.True(t, circulate.IsInvalidInput(err), "got %v", err)

	items, err := h.engine.ListItems(ctx, item.ListOpts{})
	require.NoError(t, err)
	require.Len(t, items, 1)
}
