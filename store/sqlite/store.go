package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/circulate"
	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/item"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
	circulatestore "github.com/xraph/circulate/store"
	"github.com/xraph/circulate/subscription"
)

// compile-time interface check
var _ circulatestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
//
// SQLite serializes writers, so each guarded write is issued as a single
// statement and the follow-up bookkeeping runs in triggers installed by
// Migrations: inserting a reservation clears the item's availability flag,
// inserting an item.returned event concludes the reservation and sets the
// flag again, and inserting a progression entry adjusts the profile.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables, indexes and triggers using the grove
// orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("circulate/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("circulate/sqlite: migration failed: %w", err)
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
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return circulate.ErrItemExists
	}
	return err
}

func (s *Store) GetItem(ctx context.Context, itemID id.ItemID) (*item.Item, error) {
	m := new(itemModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", itemID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulate.ErrItemNotFound
		}
		return nil, err
	}
	return fromItemModel(m)
}

func (s *Store) ListItems(ctx context.Context, opts item.ListOpts) ([]*item.Item, error) {
	var models []itemModel
	q := s.sdb.NewSelect(&models).OrderExpr("id ASC")

	if opts.Category != "" {
		q = q.Where("category = ?", opts.Category)
	}
	if opts.AvailableOnly {
		q = q.Where("available = 1")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	items := make([]*item.Item, 0, len(models))
	for i := range models {
		it, err := fromItemModel(&models[i])
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// UpdateItem writes catalog fields only. The availability flag belongs to
// the reservation lifecycle and is never written here.
func (s *Store) UpdateItem(ctx context.Context, i *item.Item) error {
	m := toItemModel(i)
	res, err := s.sdb.NewUpdate((*itemModel)(nil)).
		Set("name = ?", m.Name).
		Set("category = ?", m.Category).
		Set("replacement_amount = ?", m.ReplacementAmount).
		Set("replacement_currency = ?", m.ReplacementCurrency).
		Set("risk_tier = ?", m.RiskTier).
		Set("min_level = ?", m.MinLevel).
		Set("metadata = ?", m.Metadata).
		Set("updated_at = ?", m.UpdatedAt).
		Where("id = ?", m.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return circulate.ErrItemNotFound
	}
	return nil
}

func (s *Store) IsAvailable(ctx context.Context, itemID id.ItemID) (bool, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return false, err
	}
	var n int
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM circulate_items i
		WHERE i.id = ? AND i.available = 1
		AND NOT EXISTS (
			SELECT 1 FROM circulate_reservations r
			WHERE r.item_id = i.id AND r.status IN ('active', 'overdue')
		)
	`, itemID.String()).Scan(ctx, &n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ==================== Reservation Store ====================

// Reserve inserts r only when the item is free and the borrower holds fewer
// than g.MaxActive reservations. The partial unique index on holding
// reservations rejects a concurrent second holder. A refused insert still
// takes the write lock, so the guard flags read afterwards in the same
// transaction describe the state the insert saw.
func (s *Store) Reserve(ctx context.Context, r *reservation.Reservation, g reservation.Guard) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var inserted string
	err = tx.NewRaw(`
		INSERT INTO circulate_reservations
			(id, item_id, borrower_id, status, handover_token, due_at, condition, condition_notes, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, '', '', ?, ?
		WHERE EXISTS (SELECT 1 FROM circulate_items WHERE id = ? AND available = 1)
		AND (
			SELECT COUNT(*) FROM circulate_reservations
			WHERE borrower_id = ? AND status IN ('active', 'overdue')
		) < ?
		RETURNING id
	`,
		r.ID.String(), r.ItemID.String(), r.BorrowerID, string(r.Status), r.HandoverToken,
		r.DueAt.UTC(), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
		r.ItemID.String(),
		r.BorrowerID, g.MaxActive,
	).Scan(ctx, &inserted)

	switch {
	case err == nil:
		return tx.Commit()
	case isUniqueViolation(err):
		if strings.Contains(err.Error(), "handover_token") || strings.Contains(err.Error(), "circulate_reservations.id") {
			return circulate.ErrReservationExists
		}
		return circulate.ErrItemUnavailable
	case !isNoRows(err):
		return err
	}

	var found, claimable bool
	err = tx.NewRaw(`
		SELECT
			EXISTS (SELECT 1 FROM circulate_items WHERE id = ?),
			EXISTS (SELECT 1 FROM circulate_items WHERE id = ? AND available = 1)
	`, r.ItemID.String(), r.ItemID.String()).Scan(ctx, &found, &claimable)
	if err != nil {
		return err
	}
	return reserveOutcome(found, claimable)
}

// reserveOutcome names the guard that refused a reservation.
func reserveOutcome(found, claimable bool) error {
	switch {
	case !found:
		return circulate.ErrItemNotFound
	case !claimable:
		return circulate.ErrItemUnavailable
	default:
		return circulate.ErrLimitExceeded
	}
}

func (s *Store) GetReservation(ctx context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	m := new(reservationModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", rsvID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulate.ErrReservationNotFound
		}
		return nil, err
	}
	return fromReservationModel(m)
}

func (s *Store) GetReservationByToken(ctx context.Context, token string) (*reservation.Reservation, error) {
	m := new(reservationModel)
	err := s.sdb.NewSelect(m).
		Where("handover_token = ?", token).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulate.ErrReservationNotFound
		}
		return nil, err
	}
	return fromReservationModel(m)
}

func (s *Store) ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	var models []reservationModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC")

	if opts.BorrowerID != "" {
		q = q.Where("borrower_id = ?", opts.BorrowerID)
	}
	if !opts.ItemID.IsNil() {
		q = q.Where("item_id = ?", opts.ItemID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*reservation.Reservation, 0, len(models))
	for i := range models {
		r, err := fromReservationModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *Store) CountActiveReservations(ctx context.Context, borrowerID string) (int, error) {
	var n int
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM circulate_reservations
		WHERE borrower_id = ? AND status IN ('active', 'overdue')
	`, borrowerID).Scan(ctx, &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ConfirmHandover(ctx context.Context, rsvID id.ReservationID, at time.Time) error {
	t := at.UTC()
	res, err := s.sdb.NewUpdate((*reservationModel)(nil)).
		Set("handed_over_at = ?", t).
		Set("updated_at = ?", t).
		Where("id = ?", rsvID.String()).
		Where("status = ?", string(reservation.StatusActive)).
		Where("handed_over_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
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
	res, err := s.sdb.NewUpdate((*reservationModel)(nil)).
		Set("status = ?", string(reservation.StatusOverdue)).
		Set("updated_at = ?", t).
		Where("status = ?", string(reservation.StatusActive)).
		Where("due_at < ?", t).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReturnReservation appends evt to the outbox if the reservation still
// holds its item. The return trigger concludes the reservation and frees
// the item within the same statement.
func (s *Store) ReturnReservation(ctx context.Context, rsvID id.ReservationID, in reservation.ReturnInput, evt *event.Event) (*reservation.Reservation, error) {
	var inserted string
	err := s.sdb.NewRaw(`
		INSERT INTO circulate_events
			(id, type, reservation_id, item_id, user_id, condition, notes, timeliness, was_late, multiplier_pct, occurred_at)
		SELECT ?, ?, r.id, r.item_id, r.borrower_id, ?, ?, ?, ?, ?, ?
		FROM circulate_reservations r
		WHERE r.id = ? AND r.status IN ('active', 'overdue')
		RETURNING id
	`,
		evt.ID.String(), string(evt.Type), string(in.Condition), in.Notes,
		string(evt.Timeliness), evt.WasLate, evt.MultiplierPct, in.ReturnedAt.UTC(),
		rsvID.String(),
	).Scan(ctx, &inserted)
	if err != nil {
		if !isNoRows(err) {
			return nil, err
		}
		if _, gerr := s.GetReservation(ctx, rsvID); gerr != nil {
			return nil, gerr
		}
		return nil, circulate.ErrAlreadyReturned
	}
	return s.GetReservation(ctx, rsvID)
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return circulate.ErrSubscriptionExists
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulate.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Where("status = ?", string(subscription.StatusActive)).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, circulate.ErrNoActiveSubscription
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	t := at.UTC()
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("status = ?", string(subscription.StatusCanceled)).
		Set("canceled_at = ?", t).
		Set("updated_at = ?", t).
		Where("id = ?", subID.String()).
		Where("status = ?", string(subscription.StatusActive)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
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
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return progression.ErrProfileExists
	}
	return err
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*progression.Profile, error) {
	m := new(profileModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, progression.ErrProfileNotFound
		}
		return nil, err
	}
	return fromProfileModel(m), nil
}

// ApplyEntry journals e once per event key. The entry trigger applies the
// clamped deltas to the profile in the same statement.
func (s *Store) ApplyEntry(ctx context.Context, e *progression.Entry) (*progression.Profile, error) {
	var inserted string
	err := s.sdb.NewRaw(`
		INSERT INTO circulate_progress_entries
			(id, user_id, event_key, action, trust_delta, points, reason, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM circulate_profiles WHERE user_id = ?)
		ON CONFLICT (event_key) DO NOTHING
		RETURNING id
	`,
		e.ID.String(), e.UserID, e.EventKey, string(e.Action), e.TrustDelta, e.Points, e.Reason, e.CreatedAt.UTC(),
		e.UserID,
	).Scan(ctx, &inserted)
	if err != nil {
		if !isNoRows(err) {
			return nil, err
		}
		if _, gerr := s.GetProfile(ctx, e.UserID); gerr != nil {
			return nil, gerr
		}
		return nil, progression.ErrAlreadyApplied
	}
	return s.GetProfile(ctx, e.UserID)
}

func (s *Store) RaiseLevel(ctx context.Context, userID string, level int, at time.Time) (bool, error) {
	res, err := s.sdb.NewUpdate((*profileModel)(nil)).
		Set("level = ?", level).
		Set("updated_at = ?", at.UTC()).
		Where("user_id = ?", userID).
		Where("level < ?", level).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}
	if _, err := s.GetProfile(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) ListEntries(ctx context.Context, userID string, opts progression.ListOpts) ([]*progression.Entry, error) {
	var models []entryModel
	q := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	entries := make([]*progression.Entry, 0, len(models))
	for i := range models {
		e, err := fromEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ==================== Outbox Store ====================

func (s *Store) PendingEvents(ctx context.Context, limit int) ([]*event.Event, error) {
	var models []eventModel
	q := s.sdb.NewSelect(&models).
		Where("delivered_at IS NULL").
		OrderExpr("occurred_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	events := make([]*event.Event, 0, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

func (s *Store) MarkEventDelivered(ctx context.Context, evtID id.EventID, at time.Time) error {
	res, err := s.sdb.NewUpdate((*eventModel)(nil)).
		Set("delivered_at = ?", at.UTC()).
		Where("id = ?", evtID.String()).
		Where("delivered_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	m := new(eventModel)
	err = s.sdb.NewSelect(m).Where("id = ?", evtID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return circulate.ErrEventNotFound
		}
		return err
	}
	return nil
}

// ==================== Availability Cache Store ====================

func (s *Store) GetCachedAvailability(ctx context.Context, itemID id.ItemID) (bool, error) {
	m := new(availabilityCacheModel)
	err := s.sdb.NewSelect(m).
		Where("item_id = ?", itemID.String()).
		Where("expires_at > ?", now()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return false, circulate.ErrCacheMiss
		}
		return false, err
	}
	return m.Available, nil
}

func (s *Store) SetCachedAvailability(ctx context.Context, itemID id.ItemID, available bool, ttl time.Duration) error {
	m := &availabilityCacheModel{
		ItemID:    itemID.String(),
		Available: available,
		ExpiresAt: now().Add(ttl),
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(item_id) DO UPDATE").
		Set("available = EXCLUDED.available").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

func (s *Store) InvalidateAvailability(ctx context.Context, itemID id.ItemID) error {
	_, err := s.sdb.NewDelete((*availabilityCacheModel)(nil)).
		Where("item_id = ?", itemID.String()).
		Exec(ctx)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
