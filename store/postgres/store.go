package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the pg migration executor
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

const holdingIndex = "idx_circulate_reservations_holding"

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Guarded writes (Reserve, ReturnReservation, ApplyEntry) are single
// statements built from data-modifying CTEs, so each one commits or rolls
// back as a unit without an explicit transaction.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("circulate/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("circulate/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return circulate.ErrItemExists
	}
	return err
}

func (s *Store) GetItem(ctx context.Context, itemID id.ItemID) (*item.Item, error) {
	m := new(itemModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", itemID.String()).
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
	q := s.pg.NewSelect(&models).OrderExpr("id ASC")

	argIdx := 0
	if opts.Category != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("category = $%d", argIdx), opts.Category)
	}
	if opts.AvailableOnly {
		q = q.Where("available = TRUE")
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
	res, err := s.pg.NewUpdate((*itemModel)(nil)).
		Set("name = $1", m.Name).
		Set("category = $2", m.Category).
		Set("replacement_amount = $3", m.ReplacementAmount).
		Set("replacement_currency = $4", m.ReplacementCurrency).
		Set("risk_tier = $5", m.RiskTier).
		Set("min_level = $6", m.MinLevel).
		Set("metadata = $7", m.Metadata).
		Set("updated_at = $8", m.UpdatedAt).
		Where("id = $9", m.ID).
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
	var available bool
	err := s.pg.NewRaw(`
		SELECT EXISTS (
			SELECT 1 FROM circulate_items i
			WHERE i.id = $1 AND i.available
			AND NOT EXISTS (
				SELECT 1 FROM circulate_reservations r
				WHERE r.item_id = i.id AND r.status IN ('active', 'overdue')
			)
		)
	`, itemID.String()).Scan(ctx, &available)
	if err != nil {
		return false, err
	}
	return available, nil
}

// ==================== Reservation Store ====================

// Reserve claims the item's availability flag and inserts r in one
// statement. A concurrent claimant blocks on the item row and then finds the
// flag cleared; the partial unique index on holding reservations backs this.
// The statement also returns which guard refused the claim, so a refusal is
// never attributed from a later read.
//
// The per-borrower count is evaluated against the statement snapshot, so two
// concurrent reservations by the same borrower for different items may both
// pass under READ COMMITTED.
func (s *Store) Reserve(ctx context.Context, r *reservation.Reservation, g reservation.Guard) error {
	var (
		inserted  *string
		found     bool
		claimable bool
	)
	err := s.pg.NewRaw(`
		WITH claimed AS (
			UPDATE circulate_items i
			SET available = (h.n >= $9::int),
				updated_at = CASE WHEN h.n < $9::int THEN $7::timestamptz ELSE i.updated_at END
			FROM (
				SELECT COUNT(*) AS n FROM circulate_reservations
				WHERE borrower_id = $3::text AND status IN ('active', 'overdue')
			) h
			WHERE i.id = $2::text AND i.available
			RETURNING i.id, h.n < $9::int AS within_limit
		), inserted AS (
			INSERT INTO circulate_reservations
				(id, item_id, borrower_id, status, handover_token, due_at, created_at, updated_at)
			SELECT $1::text, claimed.id, $3::text, $4::text, $5::text, $6::timestamptz, $7::timestamptz, $8::timestamptz
			FROM claimed
			WHERE claimed.within_limit
			RETURNING id
		)
		SELECT
			(SELECT id FROM inserted),
			EXISTS (SELECT 1 FROM circulate_items WHERE id = $2::text),
			EXISTS (SELECT 1 FROM claimed)
	`,
		r.ID.String(), r.ItemID.String(), r.BorrowerID, string(r.Status), r.HandoverToken,
		r.DueAt.UTC(), r.CreatedAt.UTC(), r.UpdatedAt.UTC(), g.MaxActive,
	).Scan(ctx, &inserted, &found, &claimable)

	if err != nil {
		if isUniqueViolation(err) {
			if constraintName(err) == holdingIndex {
				return circulate.ErrItemUnavailable
			}
			return circulate.ErrReservationExists
		}
		return err
	}
	return reserveOutcome(inserted != nil, found, claimable)
}

// reserveOutcome maps the flags computed by the Reserve statement to the
// guard that refused it.
func reserveOutcome(inserted, found, claimable bool) error {
	switch {
	case inserted:
		return nil
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
	err := s.pg.NewSelect(m).
		Where("id = $1", rsvID.String()).
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
	err := s.pg.NewSelect(m).
		Where("handover_token = $1", token).
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
	q := s.pg.NewSelect(&models).OrderExpr("created_at DESC")

	argIdx := 0
	if opts.BorrowerID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("borrower_id = $%d", argIdx), opts.BorrowerID)
	}
	if !opts.ItemID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("item_id = $%d", argIdx), opts.ItemID.String())
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
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
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM circulate_reservations
		WHERE borrower_id = $1 AND status IN ('active', 'overdue')
	`, borrowerID).Scan(ctx, &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ConfirmHandover(ctx context.Context, rsvID id.ReservationID, at time.Time) error {
	t := at.UTC()
	res, err := s.pg.NewUpdate((*reservationModel)(nil)).
		Set("handed_over_at = $1", t).
		Set("updated_at = $2", t).
		Where("id = $3", rsvID.String()).
		Where("status = $4", string(reservation.StatusActive)).
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
	res, err := s.pg.NewUpdate((*reservationModel)(nil)).
		Set("status = $1", string(reservation.StatusOverdue)).
		Set("updated_at = $2", t).
		Where("status = $3", string(reservation.StatusActive)).
		Where("due_at < $4", t).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReturnReservation concludes the reservation, sets the item's availability
// flag and appends evt to the outbox in one statement.
func (s *Store) ReturnReservation(ctx context.Context, rsvID id.ReservationID, in reservation.ReturnInput, evt *event.Event) (*reservation.Reservation, error) {
	var returned string
	err := s.pg.NewRaw(`
		WITH ret AS (
			UPDATE circulate_reservations
			SET status = 'returned', returned_at = $1::timestamptz, condition = $2::text,
			    condition_notes = $3::text, updated_at = $1::timestamptz
			WHERE id = $4::text AND status IN ('active', 'overdue')
			RETURNING id, item_id, borrower_id
		), freed AS (
			UPDATE circulate_items
			SET available = TRUE, updated_at = $1::timestamptz
			FROM ret
			WHERE circulate_items.id = ret.item_id
			RETURNING circulate_items.id
		), outbox AS (
			INSERT INTO circulate_events
				(id, type, reservation_id, item_id, user_id, condition, timeliness, was_late, multiplier_pct, occurred_at)
			SELECT $5::text, $6::text, ret.id, ret.item_id, ret.borrower_id, $2::text, $7::text, $8::boolean, $9::int, $1::timestamptz
			FROM ret
			RETURNING id
		)
		SELECT ret.id FROM ret
	`,
		in.ReturnedAt.UTC(), string(in.Condition), in.Notes, rsvID.String(),
		evt.ID.String(), string(evt.Type), string(evt.Timeliness), evt.WasLate, evt.MultiplierPct,
	).Scan(ctx, &returned)
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return circulate.ErrSubscriptionExists
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
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
	err := s.pg.NewSelect(m).
		Where("user_id = $1", userID).
		Where("status = $2", string(subscription.StatusActive)).
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
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(subscription.StatusCanceled)).
		Set("canceled_at = $2", t).
		Set("updated_at = $3", t).
		Where("id = $4", subID.String()).
		Where("status = $5", string(subscription.StatusActive)).
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return progression.ErrProfileExists
	}
	return err
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*progression.Profile, error) {
	m := new(profileModel)
	err := s.pg.NewSelect(m).
		Where("user_id = $1", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, progression.ErrProfileNotFound
		}
		return nil, err
	}
	return fromProfileModel(m), nil
}

// ApplyEntry journals e once per event key and applies its clamped deltas
// to the profile in the same statement.
func (s *Store) ApplyEntry(ctx context.Context, e *progression.Entry) (*progression.Profile, error) {
	var userID string
	err := s.pg.NewRaw(`
		WITH ins AS (
			INSERT INTO circulate_progress_entries
				(id, user_id, event_key, action, trust_delta, points, reason, created_at)
			SELECT $1::text, $2::text, $3::text, $4::text, $5::int, $6::bigint, $7::text, $8::timestamptz
			WHERE EXISTS (SELECT 1 FROM circulate_profiles WHERE user_id = $2::text)
			ON CONFLICT (event_key) DO NOTHING
			RETURNING user_id, trust_delta, points, created_at
		)
		UPDATE circulate_profiles p
		SET trust_score = LEAST(GREATEST(p.trust_score + ins.trust_delta, $9::int), $10::int),
		    points      = GREATEST(p.points + ins.points, 0),
		    updated_at  = ins.created_at
		FROM ins
		WHERE p.user_id = ins.user_id
		RETURNING p.user_id
	`,
		e.ID.String(), e.UserID, e.EventKey, string(e.Action), e.TrustDelta, e.Points, e.Reason, e.CreatedAt.UTC(),
		progression.MinTrust, progression.MaxTrust,
	).Scan(ctx, &userID)
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
	res, err := s.pg.NewUpdate((*profileModel)(nil)).
		Set("level = $1", level).
		Set("updated_at = $2", at.UTC()).
		Where("user_id = $3", userID).
		Where("level < $4", level).
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
	q := s.pg.NewSelect(&models).
		Where("user_id = $1", userID).
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
	q := s.pg.NewSelect(&models).
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
	res, err := s.pg.NewUpdate((*eventModel)(nil)).
		Set("delivered_at = $1", at.UTC()).
		Where("id = $2", evtID.String()).
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
	err = s.pg.NewSelect(m).Where("id = $1", evtID.String()).Scan(ctx)
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
	err := s.pg.NewSelect(m).
		Where("item_id = $1", itemID.String()).
		Where("expires_at > $2", now()).
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
	_, err := s.pg.NewInsert(m).
		OnConflict("(item_id) DO UPDATE").
		Set("available = EXCLUDED.available").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

func (s *Store) InvalidateAvailability(ctx context.Context, itemID id.ItemID) error {
	_, err := s.pg.NewDelete((*availabilityCacheModel)(nil)).
		Where("item_id = $1", itemID.String()).
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

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// constraintName returns the violated constraint of a PostgreSQL error, or
// "" for any other error.
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
