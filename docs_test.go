package circulate_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/circulate"
	"github.com/xraph/circulate/eligibility"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/item"
	"github.com/xraph/circulate/plan"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
	"github.com/xraph/circulate/store/memory"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) OnReservationCreated(context.Context, *reservation.Reservation) error {
	r.add("created")
	return nil
}

func (r *recorder) OnReservationDenied(_ context.Context, _ string, _ id.ItemID, d eligibility.Decision) error {
	r.add("denied:" + string(d.Code))
	return nil
}

func (r *recorder) OnHandoverConfirmed(context.Context, *reservation.Reservation) error {
	r.add("handover")
	return nil
}

func (r *recorder) OnItemReturned(_ context.Context, _ *reservation.Reservation, evt *event.Event) error {
	r.add("returned:" + string(evt.Timeliness))
	return nil
}

func (r *recorder) OnTrustChanged(_ context.Context, c *progression.Change) error {
	r.add("trust:" + string(c.Action))
	return nil
}

func (r *recorder) OnLevelUp(context.Context, *progression.Change) error {
	r.add("level_up")
	return nil
}

// TestDocumentationExamples verifies the package documentation walkthrough.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()
		rec := &recorder{}

		e := circulate.New(store,
			circulate.WithLogger(slog.Default()),
			circulate.WithPlugin(rec),
			circulate.WithSweepInterval(time.Hour),
			circulate.WithRelayConfig(50, time.Hour),
		)

		ctx := context.Background()
		require.NoError(t, e.Start(ctx))
		defer e.Stop() //nolint:errcheck // test teardown

		drill := &item.Item{Name: "Cordless drill", RiskTier: item.RiskMedium, MinLevel: 1}
		require.NoError(t, e.RegisterItem(ctx, drill))

		// Basic members cannot borrow medium-risk items.
		_, err := e.Reserve(ctx, "user-1", drill.ID, 7)
		require.True(t, circulate.IsDenied(err))

		_, err = e.Subscribe(ctx, "user-1", plan.TierMaker, nil)
		require.NoError(t, err)

		r, err := e.Reserve(ctx, "user-1", drill.ID, 7)
		require.NoError(t, err)

		_, err = e.Reserve(ctx, "user-2", drill.ID, 7)
		require.True(t, circulate.IsConflict(err))

		_, err = e.ConfirmHandover(ctx, r.HandoverToken)
		require.NoError(t, err)

		res, err := e.Return(ctx, r.ID, circulate.ConditionGood, "")
		require.NoError(t, err)
		require.True(t, res.Delivered)

		rec.mu.Lock()
		defer rec.mu.Unlock()
		require.Equal(t, []string{
			"denied:risk_tier_not_permitted",
			"created",
			"handover",
			"trust:early_return",
			"returned:early",
		}, rec.events)
	})
}
