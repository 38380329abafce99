package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/circulate/event"
	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/item"
	"github.com/xraph/circulate/plan"
	"github.com/xraph/circulate/progression"
	"github.com/xraph/circulate/reservation"
	"github.com/xraph/circulate/subscription"
	"github.com/xraph/circulate/types"
)

// ==================== Item models ====================

type itemModel struct {
	grove.BaseModel `grove:"table:circulate_items"`

	ID                  string            `grove:"id,pk"                bson:"_id"`
	Name                string            `grove:"name"                 bson:"name"`
	Category            string            `grove:"category"             bson:"category"`
	ReplacementAmount   int64             `grove:"replacement_amount"   bson:"replacement_amount"`
	ReplacementCurrency string            `grove:"replacement_currency" bson:"replacement_currency"`
	RiskTier            string            `grove:"risk_tier"            bson:"risk_tier"`
	MinLevel            int               `grove:"min_level"            bson:"min_level"`
	Available           bool              `grove:"available"            bson:"available"`
	Metadata            map[string]string `grove:"metadata"             bson:"metadata,omitempty"`
	CreatedAt           time.Time         `grove:"created_at"           bson:"created_at"`
	UpdatedAt           time.Time         `grove:"updated_at"           bson:"updated_at"`
}

func toItemModel(i *item.Item) *itemModel {
	return &itemModel{
		ID:                  i.ID.String(),
		Name:                i.Name,
		Category:            i.Category,
		ReplacementAmount:   i.ReplacementValue.Amount,
		ReplacementCurrency: i.ReplacementValue.Currency,
		RiskTier:            string(i.RiskTier),
		MinLevel:            i.MinLevel,
		Available:           i.Available,
		Metadata:            i.Metadata,
		CreatedAt:           i.CreatedAt,
		UpdatedAt:           i.UpdatedAt,
	}
}

func fromItemModel(m *itemModel) (*item.Item, error) {
	itemID, err := id.ParseItemID(m.ID)
	if err != nil {
		return nil, err
	}
	return &item.Item{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               itemID,
		Name:             m.Name,
		Category:         m.Category,
		ReplacementValue: types.NewMoney(m.ReplacementAmount, m.ReplacementCurrency),
		RiskTier:         item.RiskTier(m.RiskTier),
		MinLevel:         m.MinLevel,
		Available:        m.Available,
		Metadata:         m.Metadata,
	}, nil
}

// ==================== Reservation models ====================

// reservationModel carries a denormalized holding flag so the partial
// unique index on item_id can cover active and overdue reservations.
type reservationModel struct {
	grove.BaseModel `grove:"table:circulate_reservations"`

	ID             string     `grove:"id,pk"           bson:"_id"`
	ItemID         string     `grove:"item_id"         bson:"item_id"`
	BorrowerID     string     `grove:"borrower_id"     bson:"borrower_id"`
	Status         string     `grove:"status"          bson:"status"`
	Holding        bool       `grove:"holding"         bson:"holding"`
	HandoverToken  string     `grove:"handover_token"  bson:"handover_token"`
	DueAt          time.Time  `grove:"due_at"          bson:"due_at"`
	HandedOverAt   *time.Time `grove:"handed_over_at"  bson:"handed_over_at,omitempty"`
	ReturnedAt     *time.Time `grove:"returned_at"     bson:"returned_at,omitempty"`
	Condition      string     `grove:"condition"       bson:"condition"`
	ConditionNotes string     `grove:"condition_notes" bson:"condition_notes"`
	CreatedAt      time.Time  `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"      bson:"updated_at"`
}

func toReservationModel(r *reservation.Reservation) *reservationModel {
	return &reservationModel{
		ID:             r.ID.String(),
		ItemID:         r.ItemID.String(),
		BorrowerID:     r.BorrowerID,
		Status:         string(r.Status),
		Holding:        r.Status.Holding(),
		HandoverToken:  r.HandoverToken,
		DueAt:          r.DueAt,
		HandedOverAt:   r.HandedOverAt,
		ReturnedAt:     r.ReturnedAt,
		Condition:      string(r.Condition),
		ConditionNotes: r.ConditionNotes,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromReservationModel(m *reservationModel) (*reservation.Reservation, error) {
	rsvID, err := id.ParseReservationID(m.ID)
	if err != nil {
		return nil, err
	}
	itemID, err := id.ParseItemID(m.ItemID)
	if err != nil {
		return nil, err
	}
	return &reservation.Reservation{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             rsvID,
		ItemID:         itemID,
		BorrowerID:     m.BorrowerID,
		Status:         reservation.Status(m.Status),
		HandoverToken:  m.HandoverToken,
		DueAt:          m.DueAt,
		HandedOverAt:   m.HandedOverAt,
		ReturnedAt:     m.ReturnedAt,
		Condition:      reservation.Condition(m.Condition),
		ConditionNotes: m.ConditionNotes,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:circulate_subscriptions"`

	ID         string     `grove:"id,pk"       bson:"_id"`
	UserID     string     `grove:"user_id"     bson:"user_id"`
	Tier       string     `grove:"tier"        bson:"tier"`
	Status     string     `grove:"status"      bson:"status"`
	ExpiresAt  *time.Time `grove:"expires_at"  bson:"expires_at,omitempty"`
	CanceledAt *time.Time `grove:"canceled_at" bson:"canceled_at,omitempty"`
	CreatedAt  time.Time  `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time  `grove:"updated_at"  bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:         s.ID.String(),
		UserID:     s.UserID,
		Tier:       string(s.Tier),
		Status:     string(s.Status),
		ExpiresAt:  s.ExpiresAt,
		CanceledAt: s.CanceledAt,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         subID,
		UserID:     m.UserID,
		Tier:       plan.Tier(m.Tier),
		Status:     subscription.Status(m.Status),
		ExpiresAt:  m.ExpiresAt,
		CanceledAt: m.CanceledAt,
	}, nil
}

// ==================== Progression models ====================

type profileModel struct {
	grove.BaseModel `grove:"table:circulate_profiles"`

	UserID     string    `grove:"user_id,pk"  bson:"_id"`
	Level      int       `grove:"level"       bson:"level"`
	TrustScore int       `grove:"trust_score" bson:"trust_score"`
	Points     int64     `grove:"points"      bson:"points"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toProfileModel(p *progression.Profile) *profileModel {
	return &profileModel{
		UserID:     p.UserID,
		Level:      p.Level,
		TrustScore: p.TrustScore,
		Points:     p.Points,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func fromProfileModel(m *profileModel) *progression.Profile {
	return &progression.Profile{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		UserID:     m.UserID,
		Level:      m.Level,
		TrustScore: m.TrustScore,
		Points:     m.Points,
	}
}

type entryModel struct {
	grove.BaseModel `grove:"table:circulate_progress_entries"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	UserID     string    `grove:"user_id"     bson:"user_id"`
	EventKey   string    `grove:"event_key"   bson:"event_key"`
	Action     string    `grove:"action"      bson:"action"`
	TrustDelta int       `grove:"trust_delta" bson:"trust_delta"`
	Points     int64     `grove:"points"      bson:"points"`
	Reason     string    `grove:"reason"      bson:"reason"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
}

func toEntryModel(e *progression.Entry) *entryModel {
	return &entryModel{
		ID:         e.ID.String(),
		UserID:     e.UserID,
		EventKey:   e.EventKey,
		Action:     string(e.Action),
		TrustDelta: e.TrustDelta,
		Points:     e.Points,
		Reason:     e.Reason,
		CreatedAt:  e.CreatedAt,
	}
}

func fromEntryModel(m *entryModel) (*progression.Entry, error) {
	entryID, err := id.ParseEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	return &progression.Entry{
		ID:         entryID,
		UserID:     m.UserID,
		EventKey:   m.EventKey,
		Action:     progression.Action(m.Action),
		TrustDelta: m.TrustDelta,
		Points:     m.Points,
		Reason:     m.Reason,
		CreatedAt:  m.CreatedAt,
	}, nil
}

// ==================== Outbox models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:circulate_events"`

	ID            string     `grove:"id,pk"          bson:"_id"`
	Type          string     `grove:"type"           bson:"type"`
	ReservationID string     `grove:"reservation_id" bson:"reservation_id"`
	ItemID        string     `grove:"item_id"        bson:"item_id"`
	UserID        string     `grove:"user_id"        bson:"user_id"`
	Condition     string     `grove:"condition"      bson:"condition"`
	Timeliness    string     `grove:"timeliness"     bson:"timeliness"`
	WasLate       bool       `grove:"was_late"       bson:"was_late"`
	MultiplierPct int        `grove:"multiplier_pct" bson:"multiplier_pct"`
	OccurredAt    time.Time  `grove:"occurred_at"    bson:"occurred_at"`
	DeliveredAt   *time.Time `grove:"delivered_at"   bson:"delivered_at"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:            e.ID.String(),
		Type:          string(e.Type),
		ReservationID: e.ReservationID.String(),
		ItemID:        e.ItemID.String(),
		UserID:        e.UserID,
		Condition:     string(e.Condition),
		Timeliness:    string(e.Timeliness),
		WasLate:       e.WasLate,
		MultiplierPct: e.MultiplierPct,
		OccurredAt:    e.OccurredAt,
		DeliveredAt:   e.DeliveredAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	rsvID, err := id.ParseReservationID(m.ReservationID)
	if err != nil {
		return nil, err
	}
	itemID, err := id.ParseItemID(m.ItemID)
	if err != nil {
		return nil, err
	}
	return &event.Event{
		ID:            evtID,
		Type:          event.Type(m.Type),
		ReservationID: rsvID,
		ItemID:        itemID,
		UserID:        m.UserID,
		Condition:     reservation.Condition(m.Condition),
		Timeliness:    reservation.Timeliness(m.Timeliness),
		WasLate:       m.WasLate,
		MultiplierPct: m.MultiplierPct,
		OccurredAt:    m.OccurredAt,
		DeliveredAt:   m.DeliveredAt,
	}, nil
}

// ==================== Availability cache models ====================

type availabilityCacheModel struct {
	grove.BaseModel `grove:"table:circulate_availability_cache"`

	ItemID    string    `grove:"item_id,pk"  bson:"_id"`
	Available bool      `grove:"available"   bson:"available"`
	ExpiresAt time.Time `grove:"expires_at"  bson:"expires_at"`
}
