package event

import (
	"testing"
	"time"

	"github.com/xraph/circulate/id"
	"github.com/xraph/circulate/reservation"
	"github.com/xraph/circulate/types"
)

func TestNewReturn(t *testing.T) {
	created := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	r := &reservation.Reservation{
		Entity:     types.NewEntityAt(created),
		ID:         id.NewReservationID(),
		ItemID:     id.NewItemID(),
		BorrowerID: "user-1",
		DueAt:      created.Add(7 * 24 * time.Hour),
	}

	tests := []struct {
		name       string
		at         time.Time
		timeliness reservation.Timeliness
		late       bool
	}{
		{"early", created.Add(24 * time.Hour), reservation.TimelinessEarly, false},
		{"on time", r.DueAt, reservation.TimelinessOnTime, false},
		{"late", r.DueAt.Add(48 * time.Hour), reservation.TimelinessLate, true},
		{"very late", r.DueAt.Add(96 * time.Hour), reservation.TimelinessVeryLate, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := NewReturn(r, reservation.ConditionGood, tt.at, 150)
			if evt.Type != TypeItemReturned {
				t.Errorf("Type = %s", evt.Type)
			}
			if evt.Timeliness != tt.timeliness {
				t.Errorf("Timeliness = %s, want %s", evt.Timeliness, tt.timeliness)
			}
			if evt.WasLate != tt.late {
				t.Errorf("WasLate = %v, want %v", evt.WasLate, tt.late)
			}
			if evt.UserID != "user-1" || evt.ReservationID != r.ID || evt.ItemID != r.ItemID {
				t.Error("event does not reference the reservation")
			}
			if evt.MultiplierPct != 150 || evt.Delivered() {
				t.Error("unexpected multiplier or delivery state")
			}
		})
	}
}
