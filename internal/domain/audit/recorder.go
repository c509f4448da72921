// Package audit defines the audit trail written for every document transition.
package audit

import (
	"context"
	"time"

	"costledger/internal/core/id"
)

// Entry is one audit record. Changes is marshalled to JSON by the recorder.
type Entry struct {
	ID         id.ID
	EntityType string
	EntityID   id.ID
	Action     string
	UserID     string
	Changes    any
	CreatedAt  time.Time
}

// Recorder writes audit entries inside the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Nop discards entries.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Entry) error { return nil }
