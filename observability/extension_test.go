package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/circulate/eligibility"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
)

type fakeMetric struct {
	count    float64
	observed []float64
}

func (f *fakeMetric) Inc()              { f.count++ }
func (f *fakeMetric) Add(v float64)     { f.count += v }
func (f *fakeMetric) Observe(v float64) { f.observed = append(f.observed, v) }

type fakeFactory struct {
	metrics map[string]*fakeMetric
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{metrics: make(map[string]*fakeMetric)}
}

func (f *fakeFactory) get(name string) *fakeMetric {
	m, ok := f.metrics[name]
	if !ok {
		m = &fakeMetric{}
		f.metrics[name] = m
	}
	return m
}

func (f *fakeFactory) Counter(name string) Counter     { return f.get(name) }
func (f *fakeFactory) Histogram(name string) Histogram { return f.get(name) }

func TestReturnsCountedByTimeliness(t *testing.T) {
	f := newFakeFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()
	r := &reservation.Reservation{}

	require.NoError(t, m.OnItemReturned(ctx, r, &event.Event{Timeliness: reservation.TimelinessEarly, Condition: reservation.ConditionGood}))
	require.NoError(t, m.OnItemReturned(ctx, r, &event.Event{Timeliness: reservation.TimelinessVeryLate, Condition: reservation.ConditionDamaged}))
	require.NoError(t, m.OnItemReturned(ctx, r, &event.Event{Timeliness: reservation.TimelinessVeryLate, Condition: reservation.ConditionGood}))

	assert.Equal(t, 1.0, f.get("circulate.return.early").count)
	assert.Equal(t, 2.0, f.get("circulate.return.very_late").count)
	assert.Equal(t, 0.0, f.get("circulate.return.on_time").count)
	assert.Equal(t, 1.0, f.get("circulate.return.damaged").count)
}

func TestDenialsCountedByCode(t *testing.T) {
	f := newFakeFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	d := eligibility.Decision{Code: eligibility.CodeRiskTierNotAllowed}
	require.NoError(t, m.OnReservationDenied(ctx, "u1", id.NewItemID(), d))
	require.NoError(t, m.OnReservationDenied(ctx, "u1", id.NewItemID(), eligibility.Decision{Code: "unknown"}))

	assert.Equal(t, 2.0, f.get("circulate.reservation.denied").count)
	assert.Equal(t, 1.0, f.get("circulate.reservation.denied.risk_tier").count)
}

func TestTrustAndPoints(t *testing.T) {
	f := newFakeFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	require.NoError(t, m.OnTrustChanged(ctx, &progression.Change{TrustDelta: 5, PointsAwarded: 20}))
	require.NoError(t, m.OnTrustChanged(ctx, &progression.Change{TrustDelta: -10}))
	require.NoError(t, m.OnLevelUp(ctx, &progression.Change{PreviousLevel: 1, Level: 2}))

	assert.Equal(t, 1.0, f.get("circulate.trust.raised").count)
	assert.Equal(t, 1.0, f.get("circulate.trust.lowered").count)
	assert.Equal(t, []float64{20}, f.get("circulate.points.awarded").observed)
	assert.Equal(t, 1.0, f.get("circulate.level.up").count)
}

func TestRelayAndSweep(t *testing.T) {
	f := newFakeFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	require.NoError(t, m.OnEventsRelayed(ctx, 8, 2))
	require.NoError(t, m.OnOverdueSwept(ctx, 3))

	assert.Equal(t, 8.0, f.get("circulate.outbox.delivered").count)
	assert.Equal(t, 2.0, f.get("circulate.outbox.failed").count)
	assert.Equal(t, []float64{10}, f.get("circulate.outbox.batch.size").observed)
	assert.Equal(t, 3.0, f.get("circulate.reservation.overdue").count)
}
