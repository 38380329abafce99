package reservation

import (
	"testing"
	"time"

	"github.com/xraph/circulate/types"
)

func TestClassify(t *testing.T) {
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r := &Reservation{
		Entity: types.NewEntityAt(created),
		DueAt:  created.Add(10 * 24 * time.Hour),
	}

	tests := []struct {
		name string
		at   time.Time
		want Timeliness
	}{
		{"same day", created.Add(time.Hour), TimelinessEarly},
		{"just before halfway", created.Add(5*24*time.Hour - time.Second), TimelinessEarly},
		{"at halfway", created.Add(5 * 24 * time.Hour), TimelinessOnTime},
		{"exactly due", r.DueAt, TimelinessOnTime},
		{"one second late", r.DueAt.Add(time.Second), TimelinessLate},
		{"three days late", r.DueAt.Add(VeryLateAfter), TimelinessLate},
		{"past three days", r.DueAt.Add(VeryLateAfter + time.Second), TimelinessVeryLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(r, tt.at); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStatusHolding(t *testing.T) {
	if !StatusActive.Holding() || !StatusOverdue.Holding() {
		t.Error("active and overdue must hold the item")
	}
	if StatusReturned.Holding() {
		t.Error("returned must not hold the item")
	}
}

func TestParseCondition(t *testing.T) {
	for _, s := range []string{"good", "damaged"} {
		if _, err := ParseCondition(s); err != nil {
			t.Errorf("ParseCondition(%q): %v", s, err)
		}
	}
	if _, err := ParseCondition("lost"); err == nil {
		t.Error("expected error for unknown condition")
	}
}
