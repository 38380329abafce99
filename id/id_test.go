package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/circulate/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"ItemID", id.NewItemID, "item_"},
		{"ReservationID", id.NewReservationID, "rsv_"},
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
		{"EntryID", id.NewEntryID, "pent_"},
		{"EventID", id.NewEventID, "evt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"ItemID", id.NewItemID, id.ParseItemID},
		{"ReservationID", id.NewReservationID, id.ParseReservationID},
		{"SubscriptionID", id.NewSubscriptionID, id.ParseSubscriptionID},
		{"EntryID", id.NewEntryID, id.ParseEntryID},
		{"EventID", id.NewEventID, id.ParseEventID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseItemID rejects rsv_", id.NewReservationID().String(), id.ParseItemID},
		{"ParseReservationID rejects item_", id.NewItemID().String(), id.ParseReservationID},
		{"ParseReservationID rejects hand_", id.NewHandoverToken(), id.ParseReservationID},
		{"ParseEventID rejects pent_", id.NewEntryID().String(), id.ParseEventID},
		{"ParseSubscriptionID rejects evt_", id.NewEventID().String(), id.ParseSubscriptionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewReservationID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}
}

func TestHandoverTokensAreUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		tok := id.NewHandoverToken()
		if !strings.HasPrefix(tok, "hand_") {
			t.Fatalf("unexpected token format %q", tok)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate handover token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}
