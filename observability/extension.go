// Package observability provides a metrics extension for Circulate that
// records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/circulate/eligibility"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/plugin"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnReservationCreated = (*MetricsExtension)(nil)
	_ plugin.OnReservationDenied  = (*MetricsExtension)(nil)
	_ plugin.OnHandoverConfirmed  = (*MetricsExtension)(nil)
	_ plugin.OnItemReturned       = (*MetricsExtension)(nil)
	_ plugin.OnOverdueSwept       = (*MetricsExtension)(nil)
	_ plugin.OnTrustChanged       = (*MetricsExtension)(nil)
	_ plugin.OnLevelUp            = (*MetricsExtension)(nil)
	_ plugin.OnEventsRelayed      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Circulate plugin to track lending activity.
type MetricsExtension struct {
	factory MetricFactory

	// Reservation metrics
	ReservationCreated Counter
	ReservationDenied  Counter
	HandoverConfirmed  Counter
	OverdueSwept       Counter

	// Return metrics
	ReturnEarly    Counter
	ReturnOnTime   Counter
	ReturnLate     Counter
	ReturnVeryLate Counter
	ReturnDamaged  Counter

	// Progression metrics
	TrustRaised   Counter
	TrustLowered  Counter
	PointsAwarded Histogram
	LevelUp       Counter

	// Outbox metrics
	EventsDelivered Counter
	EventsFailed    Counter
	RelayBatchSize  Histogram

	denied map[eligibility.Code]Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		ReservationCreated: factory.Counter("circulate.reservation.created"),
		ReservationDenied:  factory.Counter("circulate.reservation.denied"),
		HandoverConfirmed:  factory.Counter("circulate.handover.confirmed"),
		OverdueSwept:       factory.Counter("circulate.reservation.overdue"),

		ReturnEarly:    factory.Counter("circulate.return.early"),
		ReturnOnTime:   factory.Counter("circulate.return.on_time"),
		ReturnLate:     factory.Counter("circulate.return.late"),
		ReturnVeryLate: factory.Counter("circulate.return.very_late"),
		ReturnDamaged:  factory.Counter("circulate.return.damaged"),

		TrustRaised:   factory.Counter("circulate.trust.raised"),
		TrustLowered:  factory.Counter("circulate.trust.lowered"),
		PointsAwarded: factory.Histogram("circulate.points.awarded"),
		LevelUp:       factory.Counter("circulate.level.up"),

		EventsDelivered: factory.Counter("circulate.outbox.delivered"),
		EventsFailed:    factory.Counter("circulate.outbox.failed"),
		RelayBatchSize:  factory.Histogram("circulate.outbox.batch.size"),

		denied: map[eligibility.Code]Counter{
			eligibility.CodeLimitExceeded:       factory.Counter("circulate.reservation.denied.limit_exceeded"),
			eligibility.CodeRiskTierNotAllowed:  factory.Counter("circulate.reservation.denied.risk_tier"),
			eligibility.CodeInsufficientLevel:   factory.Counter("circulate.reservation.denied.level"),
			eligibility.CodeSubscriptionExpired: factory.Counter("circulate.reservation.denied.subscription"),
		},
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Reservation lifecycle hooks
// ──────────────────────────────────────────────────

// OnReservationCreated implements plugin.OnReservationCreated.
func (m *MetricsExtension) OnReservationCreated(_ context.Context, _ *reservation.Reservation) error {
	m.ReservationCreated.Inc()
	return nil
}

// OnReservationDenied implements plugin.OnReservationDenied.
func (m *MetricsExtension) OnReservationDenied(_ context.Context, _ string, _ id.ItemID, d eligibility.Decision) error {
	m.ReservationDenied.Inc()
	if c, ok := m.denied[d.Code]; ok {
		c.Inc()
	}
	return nil
}

// OnHandoverConfirmed implements plugin.OnHandoverConfirmed.
func (m *MetricsExtension) OnHandoverConfirmed(_ context.Context, _ *reservation.Reservation) error {
	m.HandoverConfirmed.Inc()
	return nil
}

// OnItemReturned implements plugin.OnItemReturned.
func (m *MetricsExtension) OnItemReturned(_ context.Context, _ *reservation.Reservation, evt *event.Event) error {
	switch evt.Timeliness {
	case reservation.TimelinessEarly:
		m.ReturnEarly.Inc()
	case reservation.TimelinessOnTime:
		m.ReturnOnTime.Inc()
	case reservation.TimelinessLate:
		m.ReturnLate.Inc()
	case reservation.TimelinessVeryLate:
		m.ReturnVeryLate.Inc()
	}
	if evt.Condition == reservation.ConditionDamaged {
		m.ReturnDamaged.Inc()
	}
	return nil
}

// OnOverdueSwept implements plugin.OnOverdueSwept.
func (m *MetricsExtension) OnOverdueSwept(_ context.Context, count int64) error {
	m.OverdueSwept.Add(float64(count))
	return nil
}

// ──────────────────────────────────────────────────
// Progression hooks
// ──────────────────────────────────────────────────

// OnTrustChanged implements plugin.OnTrustChanged.
func (m *MetricsExtension) OnTrustChanged(_ context.Context, c *progression.Change) error {
	switch {
	case c.TrustDelta > 0:
		m.TrustRaised.Inc()
	case c.TrustDelta < 0:
		m.TrustLowered.Inc()
	}
	if c.PointsAwarded > 0 {
		m.PointsAwarded.Observe(float64(c.PointsAwarded))
	}
	return nil
}

// OnLevelUp implements plugin.OnLevelUp.
func (m *MetricsExtension) OnLevelUp(_ context.Context, _ *progression.Change) error {
	m.LevelUp.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Outbox hooks
// ──────────────────────────────────────────────────

// OnEventsRelayed implements plugin.OnEventsRelayed.
func (m *MetricsExtension) OnEventsRelayed(_ context.Context, delivered, failed int) error {
	m.EventsDelivered.Add(float64(delivered))
	m.EventsFailed.Add(float64(failed))
	m.RelayBatchSize.Observe(float64(delivered + failed))
	return nil
}
