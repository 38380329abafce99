// Package id defines the TypeID identifiers used by Circulate records.
//
// An ID renders as "prefix_suffix", where the prefix names the record kind
// and the suffix is a UUIDv7, so IDs of one kind sort by creation time.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the record-kind part of an ID.
type Prefix string

const (
	PrefixItem         Prefix = "item"
	PrefixReservation  Prefix = "rsv"
	PrefixHandover     Prefix = "hand"
	PrefixSubscription Prefix = "sub"
	PrefixEntry        Prefix = "pent"
	PrefixEvent        Prefix = "evt"
)

// ID is a prefix-qualified identifier. The zero value is the nil ID and
// stores as NULL.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// Aliases documenting which kind of record a field refers to.
type (
	ItemID         = ID
	ReservationID  = ID
	SubscriptionID = ID
	EntryID        = ID
	EventID        = ID
)

// New generates an ID with the given prefix. An invalid prefix is a
// programming error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

func NewItemID() ID         { return New(PrefixItem) }
func NewReservationID() ID  { return New(PrefixReservation) }
func NewSubscriptionID() ID { return New(PrefixSubscription) }
func NewEntryID() ID        { return New(PrefixEntry) }
func NewEventID() ID        { return New(PrefixEvent) }

// NewHandoverToken returns a fresh single-use handover token.
func NewHandoverToken() string { return New(PrefixHandover).String() }

// Parse parses any well-formed TypeID string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and rejects IDs of another kind.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, got)
	}
	return parsed, nil
}

func ParseItemID(s string) (ID, error)        { return ParseWithPrefix(s, PrefixItem) }
func ParseReservationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixReservation) }
func ParseSubscriptionID(s string) (ID, error) {
	return ParseWithPrefix(s, PrefixSubscription)
}
func ParseEntryID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEntry) }
func ParseEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEvent) }

// String returns "prefix_suffix", or "" for the nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the record-kind prefix, or "" for the nil ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// the nil ID.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. The nil ID stores as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
