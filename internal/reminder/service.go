package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/familyhealth/internal/clock"
	"github.com/dukerupert/familyhealth/internal/recurrence"
)

// Service runs reminder operations against a Repository. Every mutation is
// load, apply, then a Save conditional on the loaded version. A lost race
// surfaces as ErrConflict and is never retried here, so a completion is
// applied at most once.
type Service struct {
	repo   Repository
	clock  clock.Clock
	logger *slog.Logger
}

// NewService creates a Service. A nil clock uses the system clock.
func NewService(repo Repository, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, clock: clk, logger: logger}
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// CreateInput describes a new reminder.
type CreateInput struct {
	FamilyMemberID *int64
	Type           Type
	Title          string
	Metadata       json.RawMessage
	Rule           recurrence.Rule
}

// Create validates in and stores a new active reminder with its first
// occurrence scheduled.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Reminder, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if in.Type == "" {
		in.Type = TypeOther
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalid, in.Type)
	}
	if len(in.Metadata) > 0 && !json.Valid(in.Metadata) {
		return nil, fmt.Errorf("%w: metadata must be valid JSON", ErrInvalid)
	}

	now := s.clock.Now()
	r := New(in.Rule, now)
	r.FamilyMemberID = in.FamilyMemberID
	r.Type = in.Type
	r.Title = in.Title
	r.Metadata = in.Metadata
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.History == nil {
		r.History = []Completion{}
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	s.logger.Info("reminder created", "id", r.ID, "type", r.Type, "state", r.State())
	return r, nil
}

// Get loads one reminder with its history.
func (s *Service) Get(ctx context.Context, id int64) (*Reminder, error) {
	return s.repo.Load(ctx, id)
}

// List queries reminders without history.
func (s *Service) List(ctx context.Context, f Filter) ([]Reminder, error) {
	return s.repo.Query(ctx, f)
}

// Delete removes a reminder and its history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// UpdateRule replaces the rule and reschedules from the last resolved
// occurrence.
func (s *Service) UpdateRule(ctx context.Context, id int64, rule recurrence.Rule) (*Reminder, error) {
	return s.mutate(ctx, id, func(r *Reminder, now time.Time) error {
		r.EditRule(rule, now)
		return nil
	})
}

// SetActive deactivates or reactivates a reminder. Setting the current value
// is a no-op write.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (*Reminder, error) {
	return s.mutate(ctx, id, func(r *Reminder, now time.Time) error {
		if active {
			r.Reactivate(now)
		} else {
			r.Deactivate()
		}
		return nil
	})
}

// Complete resolves one occurrence. A zero in.Occurrence targets whatever is
// pending at load time; callers acting on a notification should pass the
// occurrence they were shown so that duplicates fail with ErrConflict.
func (s *Service) Complete(ctx context.Context, id int64, in CompletionInput) (*Reminder, Completion, error) {
	var rec Completion
	r, err := s.mutate(ctx, id, func(r *Reminder, now time.Time) error {
		if in.Occurrence.IsZero() {
			switch {
			case r.NextScheduled != nil:
				in.Occurrence = *r.NextScheduled
			case r.Suspended != nil:
				in.Occurrence = *r.Suspended
			}
		}
		c, err := r.RecordCompletion(in, now)
		if err != nil {
			return err
		}
		rec = c
		return nil
	})
	if err != nil {
		return nil, Completion{}, err
	}
	// The store assigns the record ID on save.
	if n := len(r.History); n > 0 {
		rec = r.History[n-1]
	}
	s.logger.Info("reminder completed",
		"id", id,
		"status", rec.Status,
		"scheduled", rec.ScheduledTime,
		"adherence", r.Stats.AdherenceRate,
	)
	return r, rec, nil
}

// QueryDue lists active reminders whose next occurrence falls in [from, to],
// optionally for one family member.
func (s *Service) QueryDue(ctx context.Context, memberID *int64, from, to time.Time) ([]Reminder, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end is before its start", ErrInvalid)
	}
	active := true
	return s.repo.Query(ctx, Filter{
		FamilyMemberID: memberID,
		Active:         &active,
		NextFrom:       &from,
		NextTo:         &to,
	})
}

// Due partitions the active reminders around the current time.
func (s *Service) Due(ctx context.Context, memberID *int64, window time.Duration) (Partition, error) {
	active := true
	reminders, err := s.repo.Query(ctx, Filter{FamilyMemberID: memberID, Active: &active})
	if err != nil {
		return Partition{}, fmt.Errorf("query reminders: %w", err)
	}
	return Due(reminders, s.clock.Now(), window), nil
}

// Upcoming previews the next n occurrences after the pending one. Inactive
// and exhausted reminders have none.
func (s *Service) Upcoming(ctx context.Context, id int64, n int) ([]time.Time, error) {
	r, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.State() != StatePending || n <= 0 {
		return []time.Time{}, nil
	}
	out := []time.Time{*r.NextScheduled}
	out = append(out, recurrence.Upcoming(r.Rule, r.NextScheduled, s.clock.Now(), n-1)...)
	return out, nil
}

func (s *Service) mutate(ctx context.Context, id int64, apply func(*Reminder, time.Time) error) (*Reminder, error) {
	r, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	version := r.Version
	now := s.clock.Now()

	if err := apply(r, now); err != nil {
		return nil, err
	}
	r.UpdatedAt = now

	if err := s.repo.Save(ctx, r, version); err != nil {
		return nil, err
	}
	return r, nil
}
