// Package id provides UUIDv7 identifiers for ledger entities and documents.
// UUIDv7 is time-ordered, so ids sort close to creation order.
package id

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// New generates a new UUIDv7, falling back to v4 if the clock source fails.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// ParseAll parses a list of ids, reporting the first invalid one.
func ParseAll(values []string) ([]ID, error) {
	out := make([]ID, 0, len(values))
	for _, s := range values {
		v, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", s, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Compare orders ids bytewise.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// SortedUnique returns a sorted copy of ids without duplicates and nil values.
func SortedUnique(ids []ID) []ID {
	out := make([]ID, 0, len(ids))
	for _, v := range ids {
		if !IsNil(v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, Compare)
	return slices.Compact(out)
}
