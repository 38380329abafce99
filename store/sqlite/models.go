package sqlite

import (
	"encoding/json"
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

	ID                  string    `grove:"id,pk"`
	Name                string    `grove:"name"`
	Category            string    `grove:"category"`
	ReplacementAmount   int64     `grove:"replacement_amount"`
	ReplacementCurrency string    `grove:"replacement_currency"`
	RiskTier            string    `grove:"risk_tier"`
	MinLevel            int       `grove:"min_level"`
	Available           bool      `grove:"available"`
	Metadata            string    `grove:"metadata"`
	CreatedAt           time.Time `grove:"created_at"`
	UpdatedAt           time.Time `grove:"updated_at"`
}

func toItemModel(i *item.Item) *itemModel {
	meta := "{}"
	if len(i.Metadata) > 0 {
		b, _ := json.Marshal(i.Metadata) //nolint:errcheck // best-effort
		meta = string(b)
	}
	return &itemModel{
		ID:                  i.ID.String(),
		Name:                i.Name,
		Category:            i.Category,
		ReplacementAmount:   i.ReplacementValue.Amount,
		ReplacementCurrency: i.ReplacementValue.Currency,
		RiskTier:            string(i.RiskTier),
		MinLevel:            i.MinLevel,
		Available:           i.Available,
		Metadata:            meta,
		CreatedAt:           i.CreatedAt,
		UpdatedAt:           i.UpdatedAt,
	}
}

func fromItemModel(m *itemModel) (*item.Item, error) {
	itemID, err := id.ParseItemID(m.ID)
	if err != nil {
		return nil, err
	}

	var meta map[string]string
	if m.Metadata != "" && m.Metadata != "{}" {
		_ = json.Unmarshal([]byte(m.Metadata), &meta) //nolint:errcheck // best-effort
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
		Metadata:         meta,
	}, nil
}

// ==================== Reservation models ====================

type reservationModel struct {
	grove.BaseModel `grove:"table:circulate_reservations"`

	ID             string     `grove:"id,pk"`
	ItemID         string     `grove:"item_id"`
	BorrowerID     string     `grove:"borrower_id"`
	Status         string     `grove:"status"`
	HandoverToken  string     `grove:"handover_token"`
	DueAt          time.Time  `grove:"due_at"`
	HandedOverAt   *time.Time `grove:"handed_over_at"`
	ReturnedAt     *time.Time `grove:"returned_at"`
	Condition      string     `grove:"condition"`
	ConditionNotes string     `grove:"condition_notes"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
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

	ID         string     `grove:"id,pk"`
	UserID     string     `grove:"user_id"`
	Tier       string     `grove:"tier"`
	Status     string     `grove:"status"`
	ExpiresAt  *time.Time `grove:"expires_at"`
	CanceledAt *time.Time `grove:"canceled_at"`
	CreatedAt  time.Time  `grove:"created_at"`
	UpdatedAt  time.Time  `grove:"updated_at"`
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

	UserID     string    `grove:"user_id,pk"`
	Level      int       `grove:"level"`
	TrustScore int       `grove:"trust_score"`
	Points     int64     `grove:"points"`
	CreatedAt  time.Time `grove:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"`
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

	ID         string    `grove:"id,pk"`
	UserID     string    `grove:"user_id"`
	EventKey   string    `grove:"event_key"`
	Action     string    `grove:"action"`
	TrustDelta int       `grove:"trust_delta"`
	Points     int64     `grove:"points"`
	Reason     string    `grove:"reason"`
	CreatedAt  time.Time `grove:"created_at"`
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

	ID            string     `grove:"id,pk"`
	Type          string     `grove:"type"`
	ReservationID string     `grove:"reservation_id"`
	ItemID        string     `grove:"item_id"`
	UserID        string     `grove:"user_id"`
	Condition     string     `grove:"condition"`
	Notes         string     `grove:"notes"`
	Timeliness    string     `grove:"timeliness"`
	WasLate       bool       `grove:"was_late"`
	MultiplierPct int        `grove:"multiplier_pct"`
	OccurredAt    time.Time  `grove:"occurred_at"`
	DeliveredAt   *time.Time `grove:"delivered_at"`
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

	ItemID    string    `grove:"item_id,pk"`
	Available bool      `grove:"available"`
	ExpiresAt time.Time `grove:"expires_at"`
}
