package store

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	ErrOpen          = errors.New("failed to open person store")
	ErrUnknownLookup = errors.New("unknown lookup")
)

// PersonRecord is a single row returned by a person lookup.
// Field order is the order used on the wire.
type PersonRecord struct {
	Identifier string `json:"identifier"`
	FullName   string `json:"fullName"`
	Sex        string `json:"sex"`
	BirthDate  string `json:"birthDate"`
}

// PersonStore defines the read-only lookups served over the wire.
//
// Implementations never return an error for a failed lookup: a statement that cannot be
// prepared or executed yields an empty result so the caller still answers with a
// well-formed, empty payload.
type PersonStore interface {
	// ByIdentifier returns the records whose identifier equals id exactly.
	ByIdentifier(ctx context.Context, id string) []PersonRecord

	// ByNameSubstring returns the records whose full name matches the LIKE pattern %query%.
	ByNameSubstring(ctx context.Context, query string) []PersonRecord

	// ByExactName returns the records whose full name equals name, ignoring case.
	ByExactName(ctx context.Context, name string) []PersonRecord

	Close() error
}

// Lookup names one of the three lookup kinds.
type Lookup string

const (
	LookupIdentifier Lookup = "identifier"
	LookupName       Lookup = "name"
	LookupExactName  Lookup = "exact-name"
)

// Run executes the lookup of kind l against s.
func (l Lookup) Run(ctx context.Context, s PersonStore, value string) ([]PersonRecord, error) {
	switch l {
	case LookupIdentifier:
		return s.ByIdentifier(ctx, value), nil
	case LookupName:
		return s.ByNameSubstring(ctx, value), nil
	case LookupExactName:
		return s.ByExactName(ctx, value), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLookup, string(l))
	}
}
