// Package kafkasink publishes Circulate lifecycle events to a Kafka topic.
//
// Each hook is encoded as a JSON Envelope. Messages are keyed by item ID for
// lending events and by user ID for progression events, so a consumer sees
// one item's or one member's history in order within a partition.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/plugin"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Sink)(nil)
	_ plugin.OnReservationCreated = (*Sink)(nil)
	_ plugin.OnHandoverConfirmed  = (*Sink)(nil)
	_ plugin.OnItemReturned       = (*Sink)(nil)
	_ plugin.OnTrustChanged       = (*Sink)(nil)
	_ plugin.OnLevelUp            = (*Sink)(nil)
	_ plugin.OnShutdown           = (*Sink)(nil)
)

// Published event types.
const (
	TypeReservationCreated = "reservation.created"
	TypeHandoverConfirmed  = "handover.confirmed"
	TypeItemReturned       = "item.returned"
	TypeTrustChanged       = "trust.changed"
	TypeLevelUp            = "level.up"
)

// HeaderEventType carries the envelope type so consumers can route
// without decoding the body.
const HeaderEventType = "circulate-event-type"

// Producer writes messages to Kafka. *kafka.Writer satisfies it.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// returnedData is the payload of an item.returned envelope.
type returnedData struct {
	Reservation *reservation.Reservation `json:"reservation"`
	Event       *event.Event             `json:"event"`
}

// Sink is a plugin that forwards lifecycle events to a Producer.
type Sink struct {
	producer Producer
	closer   func() error
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger sets the logger for the sink.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) { s.logger = logger }
}

// WithClock overrides the time source used to stamp envelopes.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// New creates a Sink writing through p.
func New(p Producer, opts ...Option) *Sink {
	s := &Sink{
		producer: p,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewWriter creates a Sink over a kafka.Writer for topic on brokers. The
// writer is closed on plugin shutdown.
func NewWriter(brokers []string, topic string, opts ...Option) *Sink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	s := New(w, opts...)
	s.closer = w.Close
	return s
}

// Name implements plugin.Plugin.
func (s *Sink) Name() string { return "kafka-sink" }

// OnShutdown implements plugin.OnShutdown.
func (s *Sink) OnShutdown(_ context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// ──────────────────────────────────────────────────
// Lending hooks
// ──────────────────────────────────────────────────

// OnReservationCreated implements plugin.OnReservationCreated.
func (s *Sink) OnReservationCreated(ctx context.Context, r *reservation.Reservation) error {
	return s.publish(ctx, TypeReservationCreated, r.ItemID.String(), r.CreatedAt, r)
}

// OnHandoverConfirmed implements plugin.OnHandoverConfirmed.
func (s *Sink) OnHandoverConfirmed(ctx context.Context, r *reservation.Reservation) error {
	at := s.now()
	if r.HandedOverAt != nil {
		at = *r.HandedOverAt
	}
	return s.publish(ctx, TypeHandoverConfirmed, r.ItemID.String(), at, r)
}

// OnItemReturned implements plugin.OnItemReturned.
func (s *Sink) OnItemReturned(ctx context.Context, r *reservation.Reservation, evt *event.Event) error {
	return s.publish(ctx, TypeItemReturned, r.ItemID.String(), evt.OccurredAt,
		returnedData{Reservation: r, Event: evt})
}

// ──────────────────────────────────────────────────
// Progression hooks
// ──────────────────────────────────────────────────

// OnTrustChanged implements plugin.OnTrustChanged.
func (s *Sink) OnTrustChanged(ctx context.Context, c *progression.Change) error {
	return s.publish(ctx, TypeTrustChanged, c.UserID, time.Time{}, c)
}

// OnLevelUp implements plugin.OnLevelUp.
func (s *Sink) OnLevelUp(ctx context.Context, c *progression.Change) error {
	return s.publish(ctx, TypeLevelUp, c.UserID, time.Time{}, c)
}

// publish encodes data into an envelope and writes it keyed by key. A zero
// at is stamped with the sink clock.
func (s *Sink) publish(ctx context.Context, typ, key string, at time.Time, data any) error {
	if at.IsZero() {
		at = s.now()
	}
	body, err := json.Marshal(Envelope{Type: typ, OccurredAt: at.UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("kafkasink: encode %s: %w", typ, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(typ)},
		},
	}
	if err := s.producer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error("kafkasink: publish failed",
			"type", typ,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("kafkasink: publish %s: %w", typ, err)
	}
	return nil
}
