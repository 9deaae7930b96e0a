package reminder

import (
	"context"
	"time"
)

// Filter narrows a reminder query. Zero fields match everything.
type Filter struct {
	FamilyMemberID *int64
	Type           Type
	Active         *bool
	// NextFrom and NextTo bound next_scheduled, inclusive. Either bound
	// excludes reminders with nothing scheduled.
	NextFrom *time.Time
	NextTo   *time.Time
}

// Repository persists reminders. Save is a conditional write: it succeeds
// only when the stored version still equals expectedVersion, otherwise it
// returns ErrConflict and writes nothing.
type Repository interface {
	// Create inserts r and sets its ID and Version.
	Create(ctx context.Context, r *Reminder) error
	// Load returns the reminder with its full history, or ErrNotFound.
	Load(ctx context.Context, id int64) (*Reminder, error)
	// Save writes r and any history records not yet stored, then bumps
	// r.Version.
	Save(ctx context.Context, r *Reminder, expectedVersion int64) error
	// Query lists reminders without their history, ordered by next_scheduled.
	Query(ctx context.Context, f Filter) ([]Reminder, error)
	// Delete removes the reminder and its history.
	Delete(ctx context.Context, id int64) error
}
