package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		name string
		m    Money
		want string
	}{
		{"usd", USD(4900), "49.00"},
		{"usd cents", USD(5), "0.05"},
		{"negative", EUR(-1250), "-12.50"},
		{"zero decimal", NewMoney(100, "JPY"), "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.FormatMajor(); got != tt.want {
				t.Errorf("FormatMajor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMoneyString(t *testing.T) {
	tests := []struct {
		m    Money
		want string
	}{
		{USD(12999), "$129.99"},
		{GBP(900), "£9.00"},
		{NewMoney(500, "chf"), "CHF 5.00"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestMoneyPredicates(t *testing.T) {
	if !Zero("USD").IsZero() {
		t.Error("Zero should be zero")
	}
	if Zero("USD").Currency != "usd" {
		t.Errorf("currency not normalised: %q", Zero("USD").Currency)
	}
	if !USD(-1).IsNegative() {
		t.Error("USD(-1) should be negative")
	}
	if USD(1).IsNegative() {
		t.Error("USD(1) should not be negative")
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(4900))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["display"] != "$49.00" {
		t.Errorf("display = %v", out["display"])
	}
}

func TestEntityAt(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	e := NewEntityAt(at)
	if !e.CreatedAt.Equal(at) || e.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt = %v", e.CreatedAt)
	}
	later := at.Add(time.Hour)
	e.Touch(later)
	if !e.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v", e.UpdatedAt)
	}
}
