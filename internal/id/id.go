// Package id defines the prefixed identifiers used for every entity.
//
// Identifiers are TypeIDs ("prefix_suffix"): the suffix is a base32 encoded
// UUIDv7, so IDs are globally unique, K-sortable and URL safe, and the prefix
// tells which table an identifier belongs to.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in an ID.
type Prefix string

const (
	PrefixUser          Prefix = "usr"
	PrefixWallet        Prefix = "wlt"
	PrefixPaymentMethod Prefix = "pmt"
	PrefixVehicle       Prefix = "vcl"
	PrefixRide          Prefix = "rid"
	PrefixRideWaypoint  Prefix = "rwp"
	PrefixTransaction   Prefix = "trx"
)

// ID is a prefix-qualified entity identifier.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses an ID string such as "rid_01h2xcejqtf2nbrexx3vqjhp41".
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

// ParseWithPrefix parses s and checks that its prefix is the expected one.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// Valid reports whether s is a well-formed ID carrying the expected prefix.
func Valid(s string, expected Prefix) bool {
	_, err := ParseWithPrefix(s, expected)
	return err == nil
}

func NewUserID() ID          { return New(PrefixUser) }
func NewWalletID() ID        { return New(PrefixWallet) }
func NewPaymentMethodID() ID { return New(PrefixPaymentMethod) }
func NewVehicleID() ID       { return New(PrefixVehicle) }
func NewRideID() ID          { return New(PrefixRide) }
func NewRideWaypointID() ID  { return New(PrefixRideWaypoint) }
func NewTransactionID() ID   { return New(PrefixTransaction) }

// String returns the "prefix_suffix" form, or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
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

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil
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
		return fmt.Errorf("id: cannot scan %T", src)
	}
}
