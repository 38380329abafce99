package circulate

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
	}{
		{"wrapped item not found", fmt.Errorf("lookup: %w", ErrItemNotFound), IsNotFound},
		{"profile not found", ErrProfileNotFound, IsNotFound},
		{"unavailable is conflict", ErrItemUnavailable, IsConflict},
		{"validation is invalid input", ValidationError{Field: "duration_days", Message: "out of range"}, IsInvalidInput},
		{"denied error", &DeniedError{Code: "limit_exceeded", Reason: "limit exceeded"}, IsDenied},
		{"internal error", &InternalError{Op: "reserve", Err: errors.New("disk")}, IsInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.is(tt.err) {
				t.Errorf("classification failed for %v", tt.err)
			}
		})
	}
}

func TestDeniedErrorUnwrapsCause(t *testing.T) {
	err := denied(ErrAlreadyReturned, "already_returned", "already returned")
	if !errors.Is(err, ErrAlreadyReturned) {
		t.Error("expected cause to be reachable")
	}
	if !errors.Is(err, ErrDenied) {
		t.Error("expected ErrDenied match")
	}
	var de *DeniedError
	if !errors.As(err, &de) || de.Reason != "already returned" {
		t.Errorf("unexpected DeniedError %+v", de)
	}
}

func TestInternalKeepsDomainErrors(t *testing.T) {
	if got := internal("get item", ErrItemNotFound); got != ErrItemNotFound {
		t.Errorf("internal rewrapped a domain error: %v", got)
	}
	raw := errors.New("connection reset")
	got := internal("get item", raw)
	if !IsInternal(got) || !errors.Is(got, raw) {
		t.Errorf("internal(%v) = %v", raw, got)
	}
	if internal("noop", nil) != nil {
		t.Error("internal(nil) must be nil")
	}
}

func TestMultiError(t *testing.T) {
	var m MultiError
	if m.HasErrors() || m.First() != nil {
		t.Fatal("empty MultiError reports errors")
	}
	m.Add(nil)
	m.Add(ErrEventNotFound)
	m.Add(errors.New("other"))
	if !m.HasErrors() || m.First() != ErrEventNotFound {
		t.Error("unexpected MultiError state")
	}
	if !errors.Is(m, ErrEventNotFound) {
		t.Error("MultiError should expose collected errors")
	}
	if m.Error() != "circulate: 2 errors occurred" {
		t.Errorf("Error() = %q", m.Error())
	}
}
