package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/circulate"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/item"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
	circulatestore "github.com/xraph/circulate/store"
	"github.com/xraph/circulate/subscription"
)

// Collection name constants.
const (
	colItems         = "circulate_items"
	colReservations  = "circulate_reservations"
	colSubscriptions = "circulate_subscriptions"
	colProfiles      = "circulate_profiles"
	colEntries       = "circulate_progress_entries"
	colEvents        = "circulate_events"
	colAvailability  = "circulate_availability_cache"
)

const idxHolding = "circulate_holding_item"

// compile-time interface check
var _ circulatestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
//
// Reserve, ReturnReservation and ApplyEntry run as multi-document
// transactions, which need a replica set (a single-node set is enough).
// The partial unique index on holding reservations rejects a second holder
// of one item even outside a transaction.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all circulate collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("circulate/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Item Store ====================

func (s *Store) CreateItem(ctx context.Context, i *item.Item) error {
	m := toItemModel(i)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return circulate.ErrItemExists
		}
		return fmt.Errorf("circulate/mongo: create item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, itemID id.ItemID) (*item.Item, error) {
	var m itemModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": itemID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulate.ErrItemNotFound
		}
		return nil, fmt.Errorf("circulate/mongo: get item: %w", err)
	}
	return fromItemModel(&m)
}

func (s *Store) ListItems(ctx context.Context, opts item.ListOpts) ([]*item.Item, error) {
	var models []itemModel

	filter := bson.M{}
	if opts.Category != "" {
		filter["category"] = opts.Category
	}
	if opts.AvailableOnly {
		filter["available"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("circulate/mongo: list items: %w", err)
	}

	result := make([]*item.Item, len(models))
	for i := range models {
		it, err := fromItemModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = it
	}
	return result, nil
}

// UpdateItem writes catalog fields only. The availability flag belongs to
// the reservation lifecycle and is never written here.
func (s *Store) UpdateItem(ctx context.Context, i *item.Item) error {
	m := toItemModel(i)
	res, err := s.mdb.NewUpdate((*itemModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		Set("name", m.Name).
		Set("category", m.Category).
		Set("replacement_amount", m.ReplacementAmount).
		Set("replacement_currency", m.ReplacementCurrency).
		Set("risk_tier", m.RiskTier).
		Set("min_level", m.MinLevel).
		Set("metadata", m.Metadata).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulate/mongo: update item: %w", err)
	}
	if res.MatchedCount() == 0 {
		return circulate.ErrItemNotFound
	}
	return nil
}

func (s *Store) IsAvailable(ctx context.Context, itemID id.ItemID) (bool, error) {
	i, err := s.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	if !i.Available {
		return false, nil
	}
	held, err := s.mdb.Collection(colReservations).CountDocuments(ctx, bson.M{
		"item_id": itemID.String(),
		"holding": true,
	})
	if err != nil {
		return false, fmt.Errorf("circulate/mongo: count holders: %w", err)
	}
	return held == 0, nil
}

// ==================== Reservation Store ====================

func (s *Store) Reserve(ctx context.Context, r *reservation.Reservation, g reservation.Guard) error {
	m := toReservationModel(r)
	items := s.mdb.Collection(colItems)
	reservations := s.mdb.Collection(colReservations)

	err := s.withTx(ctx, func(ctx context.Context) error {
		res, err := items.UpdateOne(ctx,
			bson.M{"_id": m.ItemID, "available": true},
			bson.M{"$set": bson.M{"available": false, "updated_at": m.CreatedAt}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			n, err := items.CountDocuments(ctx, bson.M{"_id": m.ItemID})
			if err != nil {
				return err
			}
			if n == 0 {
				return circulate.ErrItemNotFound
			}
			return circulate.ErrItemUnavailable
		}

		active, err := reservations.CountDocuments(ctx, bson.M{"borrower_id": m.BorrowerID, "holding": true})
		if err != nil {
			return err
		}
		if active >= int64(g.MaxActive) {
			return circulate.ErrLimitExceeded
		}

		_, err = s.mdb.NewInsert(m).Exec(ctx)
		return err
	})

	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		if strings.Contains(err.Error(), idxHolding) {
			return circulate.ErrItemUnavailable
		}
		return circulate.ErrReservationExists
	case errors.Is(err, circulate.ErrItemNotFound),
		errors.Is(err, circulate.ErrItemUnavailable),
		errors.Is(err, circulate.ErrLimitExceeded):
		return err
	default:
		return fmt.Errorf("circulate/mongo: reserve: %w", err)
	}
}

func (s *Store) GetReservation(ctx context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	var m reservationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": rsvID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulate.ErrReservationNotFound
		}
		return nil, fmt.Errorf("circulate/mongo: get reservation: %w", err)
	}
	return fromReservationModel(&m)
}

func (s *Store) GetReservationByToken(ctx context.Context, token string) (*reservation.Reservation, error) {
	var m reservationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"handover_token": token}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulate.ErrReservationNotFound
		}
		return nil, fmt.Errorf("circulate/mongo: get reservation by token: %w", err)
	}
	return fromReservationModel(&m)
}

func (s *Store) ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	var models []reservationModel

	filter := bson.M{}
	if opts.BorrowerID != "" {
		filter["borrower_id"] = opts.BorrowerID
	}
	if !opts.ItemID.IsNil() {
		filter["item_id"] = opts.ItemID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("circulate/mongo: list reservations: %w", err)
	}

	result := make([]*reservation.Reservation, len(models))
	for i := range models {
		r, err := fromReservationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) CountActiveReservations(ctx context.Context, borrowerID string) (int, error) {
	n, err := s.mdb.Collection(colReservations).CountDocuments(ctx, bson.M{
		"borrower_id": borrowerID,
		"holding":     true,
	})
	if err != nil {
		return 0, fmt.Errorf("circulate/mongo: count active reservations: %w", err)
	}
	return int(n), nil
}

func (s *Store) ConfirmHandover(ctx context.Context, rsvID id.ReservationID, at time.Time) error {
	t := at.UTC()
	res, err := s.mdb.NewUpdate((*reservationModel)(nil)).
		Filter(bson.M{
			"_id":            rsvID.String(),
			"status":         string(reservation.StatusActive),
			"handed_over_at": nil,
		}).
		Set("handed_over_at", t).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulate/mongo: confirm handover: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	r, err := s.GetReservation(ctx, rsvID)
	if err != nil {
		return err
	}
	if r.Status != reservation.StatusActive {
		return circulate.ErrReservationNotActive
	}
	return circulate.ErrHandoverConfirmed
}

func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	t := now.UTC()
	res, err := s.mdb.Collection(colReservations).UpdateMany(ctx,
		bson.M{"status": string(reservation.StatusActive), "due_at": bson.M{"$lt": t}},
		bson.M{"$set": bson.M{"status": string(reservation.StatusOverdue), "updated_at": t}},
	)
	if err != nil {
		return 0, fmt.Errorf("circulate/mongo: mark overdue: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) ReturnReservation(ctx context.Context, rsvID id.ReservationID, in reservation.ReturnInput, evt *event.Event) (*reservation.Reservation, error) {
	at := in.ReturnedAt.UTC()
	reservations := s.mdb.Collection(colReservations)

	err := s.withTx(ctx, func(ctx context.Context) error {
		var m reservationModel
		err := reservations.FindOneAndUpdate(ctx,
			bson.M{"_id": rsvID.String(), "holding": true},
			bson.M{"$set": bson.M{
				"status":          string(reservation.StatusReturned),
				"holding":         false,
				"returned_at":     at,
				"condition":       string(in.Condition),
				"condition_notes": in.Notes,
				"updated_at":      at,
			}},
		).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				n, cerr := reservations.CountDocuments(ctx, bson.M{"_id": rsvID.String()})
				if cerr != nil {
					return cerr
				}
				if n == 0 {
					return circulate.ErrReservationNotFound
				}
				return circulate.ErrAlreadyReturned
			}
			return err
		}

		_, err = s.mdb.Collection(colItems).UpdateOne(ctx,
			bson.M{"_id": m.ItemID},
			bson.M{"$set": bson.M{"available": true, "updated_at": at}},
		)
		if err != nil {
			return err
		}

		_, err = s.mdb.NewInsert(toEventModel(evt)).Exec(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, circulate.ErrReservationNotFound) || errors.Is(err, circulate.ErrAlreadyReturned) {
			return nil, err
		}
		return nil, fmt.Errorf("circulate/mongo: return reservation: %w", err)
	}
	return s.GetReservation(ctx, rsvID)
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return circulate.ErrSubscriptionExists
		}
		return fmt.Errorf("circulate/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulate.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("circulate/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"user_id": userID,
			"status":  string(subscription.StatusActive),
		}).
		Sort(bson.D{{Key: "created_at", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, circulate.ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("circulate/mongo: get active subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	t := at.UTC()
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String(), "status": string(subscription.StatusActive)}).
		Set("status", string(subscription.StatusCanceled)).
		Set("canceled_at", t).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulate/mongo: cancel subscription: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}
	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return err
	}
	return circulate.ErrSubscriptionCanceled
}

// ==================== Progression Store ====================

func (s *Store) CreateProfile(ctx context.Context, p *progression.Profile) error {
	m := toProfileModel(p)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return progression.ErrProfileExists
		}
		return fmt.Errorf("circulate/mongo: create profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*progression.Profile, error) {
	var m profileModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, progression.ErrProfileNotFound
		}
		return nil, fmt.Errorf("circulate/mongo: get profile: %w", err)
	}
	return fromProfileModel(&m), nil
}

// ApplyEntry journals e under its unique event key and applies the clamped
// deltas to the profile with an aggregation-pipeline update.
func (s *Store) ApplyEntry(ctx context.Context, e *progression.Entry) (*progression.Profile, error) {
	profiles := s.mdb.Collection(colProfiles)

	var out profileModel
	err := s.withTx(ctx, func(ctx context.Context) error {
		n, err := profiles.CountDocuments(ctx, bson.M{"_id": e.UserID})
		if err != nil {
			return err
		}
		if n == 0 {
			return progression.ErrProfileNotFound
		}

		if _, err := s.mdb.NewInsert(toEntryModel(e)).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return progression.ErrAlreadyApplied
			}
			return err
		}

		update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
			{Key: "trust_score", Value: bson.D{{Key: "$min", Value: bson.A{
				bson.D{{Key: "$max", Value: bson.A{
					bson.D{{Key: "$add", Value: bson.A{"$trust_score", e.TrustDelta}}},
					progression.MinTrust,
				}}},
				progression.MaxTrust,
			}}}},
			{Key: "points", Value: bson.D{{Key: "$max", Value: bson.A{
				bson.D{{Key: "$add", Value: bson.A{"$points", e.Points}}},
				0,
			}}}},
			{Key: "updated_at", Value: e.CreatedAt.UTC()},
		}}}}

		return profiles.FindOneAndUpdate(ctx,
			bson.M{"_id": e.UserID},
			update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&out)
	})
	if err != nil {
		if errors.Is(err, progression.ErrProfileNotFound) || errors.Is(err, progression.ErrAlreadyApplied) {
			return nil, err
		}
		return nil, fmt.Errorf("circulate/mongo: apply entry: %w", err)
	}
	return fromProfileModel(&out), nil
}

func (s *Store) RaiseLevel(ctx context.Context, userID string, level int, at time.Time) (bool, error) {
	res, err := s.mdb.NewUpdate((*profileModel)(nil)).
		Filter(bson.M{"_id": userID, "level": bson.M{"$lt": level}}).
		Set("level", level).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("circulate/mongo: raise level: %w", err)
	}
	if res.MatchedCount() > 0 {
		return true, nil
	}
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) ListEntries(ctx context.Context, userID string, opts progression.ListOpts) ([]*progression.Entry, error) {
	var models []entryModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID}).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("circulate/mongo: list entries: %w", err)
	}

	result := make([]*progression.Entry, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Outbox Store ====================

func (s *Store) PendingEvents(ctx context.Context, limit int) ([]*event.Event, error) {
	var models []eventModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"delivered_at": nil}).
		Sort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("circulate/mongo: pending events: %w", err)
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

func (s *Store) MarkEventDelivered(ctx context.Context, evtID id.EventID, at time.Time) error {
	res, err := s.mdb.NewUpdate((*eventModel)(nil)).
		Filter(bson.M{"_id": evtID.String(), "delivered_at": nil}).
		Set("delivered_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulate/mongo: mark event delivered: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	n, err := s.mdb.Collection(colEvents).CountDocuments(ctx, bson.M{"_id": evtID.String()})
	if err != nil {
		return fmt.Errorf("circulate/mongo: mark event delivered: %w", err)
	}
	if n == 0 {
		return circulate.ErrEventNotFound
	}
	return nil
}

// ==================== Availability Cache Store ====================

func (s *Store) GetCachedAvailability(ctx context.Context, itemID id.ItemID) (bool, error) {
	var m availabilityCacheModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"_id":        itemID.String(),
			"expires_at": bson.M{"$gt": now()},
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return false, circulate.ErrCacheMiss
		}
		return false, fmt.Errorf("circulate/mongo: get cached availability: %w", err)
	}
	return m.Available, nil
}

func (s *Store) SetCachedAvailability(ctx context.Context, itemID id.ItemID, available bool, ttl time.Duration) error {
	m := &availabilityCacheModel{
		ItemID:    itemID.String(),
		Available: available,
		ExpiresAt: now().Add(ttl),
	}

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ItemID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":        m.ItemID,
			"available":  m.Available,
			"expires_at": m.ExpiresAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulate/mongo: set cached availability: %w", err)
	}
	return nil
}

func (s *Store) InvalidateAvailability(ctx context.Context, itemID id.ItemID) error {
	_, err := s.mdb.NewDelete((*availabilityCacheModel)(nil)).
		Filter(bson.M{"_id": itemID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("circulate/mongo: invalidate availability: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// withTx runs fn inside a multi-document transaction. The driver retries fn
// on transient transaction errors.
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	client := s.mdb.Collection(colItems).Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all circulate collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colItems: {
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		colReservations: {
			{
				Keys: bson.D{{Key: "item_id", Value: 1}},
				Options: options.Index().
					SetName(idxHolding).
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"holding": true}),
			},
			{
				Keys:    bson.D{{Key: "handover_token", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "borrower_id", Value: 1}, {Key: "holding", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_at", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colEntries: {
			{
				Keys:    bson.D{{Key: "event_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "delivered_at", Value: 1}, {Key: "occurred_at", Value: 1}}},
		},
		colAvailability: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
	}
}
