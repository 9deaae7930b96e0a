// Package reminder holds the reminder state machine: a recurrence rule plus
// activation, scheduling cursor, completion history and adherence stats.
package reminder

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/familyhealth/internal/recurrence"
)

var (
	// ErrNotFound is returned when a reminder does not exist.
	ErrNotFound = errors.New("reminder: not found")
	// ErrNotDue is returned when a completion targets a reminder with no
	// pending occurrence.
	ErrNotDue = errors.New("reminder: no occurrence is due")
	// ErrConflict is returned when the reminder changed since the caller read
	// it. Reload and retry.
	ErrConflict = errors.New("reminder: concurrent modification")
	// ErrInvalid is wrapped by input validation failures.
	ErrInvalid = errors.New("reminder: invalid input")
)

// State is derived from the active flag and the scheduling cursor.
type State string

const (
	StatePending   State = "pending"
	StateExhausted State = "exhausted"
	StateInactive  State = "inactive"
)

// Type describes what a reminder is for. The engine never inspects it.
type Type string

const (
	TypeMedication  Type = "medication"
	TypeAppointment Type = "appointment"
	TypeMeasurement Type = "measurement"
	TypeActivity    Type = "activity"
	TypeOther       Type = "other"
)

var validTypes = map[Type]bool{
	TypeMedication:  true,
	TypeAppointment: true,
	TypeMeasurement: true,
	TypeActivity:    true,
	TypeOther:       true,
}

// Valid reports whether t is a known reminder type.
func (t Type) Valid() bool { return validTypes[t] }

// Status is the resolution of one occurrence.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusMissed    Status = "missed"
)

// Valid reports whether s is a known completion status.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusMissed:
		return true
	}
	return false
}

// Completion records how one scheduled occurrence was resolved.
type Completion struct {
	ID            int64      `json:"id"`
	ReminderID    int64      `json:"reminder_id"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	CompletedTime *time.Time `json:"completed_time"`
	Status        Status     `json:"status"`
	Notes         string     `json:"notes"`
	RecordedBy    *int64     `json:"recorded_by"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Reminder is the persisted reminder entity. Mutate it only through its
// methods so that the schedule, history and stats stay consistent.
type Reminder struct {
	ID             int64           `json:"id"`
	FamilyMemberID *int64          `json:"family_member_id"`
	Type           Type            `json:"type"`
	Title          string          `json:"title"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Rule           recurrence.Rule `json:"-"`
	Active         bool            `json:"is_active"`
	LastScheduled  *time.Time      `json:"last_scheduled"`
	NextScheduled  *time.Time      `json:"next_scheduled"`
	History        []Completion    `json:"completion_history,omitempty"`
	Stats          Stats           `json:"stats"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Suspended is the occurrence that was pending when the reminder was
	// deactivated. Completions already in flight for it are still accepted.
	Suspended *time.Time `json:"-"`
}

// New creates an active reminder for rule and schedules its first
// occurrence.
func New(rule recurrence.Rule, now time.Time) *Reminder {
	r := &Reminder{Rule: rule, Active: true}
	r.reschedule(now)
	return r
}

// State derives the lifecycle state.
func (r *Reminder) State() State {
	switch {
	case !r.Active:
		return StateInactive
	case r.NextScheduled == nil:
		return StateExhausted
	default:
		return StatePending
	}
}

func (r *Reminder) reschedule(now time.Time) {
	if !r.Active {
		r.NextScheduled = nil
		return
	}
	next, ok := recurrence.Next(r.Rule, r.LastScheduled, now)
	if !ok {
		r.NextScheduled = nil
		return
	}
	r.NextScheduled = &next
}

// EditRule replaces the rule and recomputes the next occurrence from the
// last resolved one.
func (r *Reminder) EditRule(rule recurrence.Rule, now time.Time) {
	r.Rule = rule
	r.reschedule(now)
}

// Deactivate stops scheduling immediately. History is kept.
func (r *Reminder) Deactivate() {
	if !r.Active {
		return
	}
	if r.NextScheduled != nil {
		s := *r.NextScheduled
		r.Suspended = &s
	}
	r.Active = false
	r.NextScheduled = nil
}

// Reactivate resumes scheduling from the last resolved occurrence.
func (r *Reminder) Reactivate(now time.Time) {
	if r.Active {
		return
	}
	r.Active = true
	r.Suspended = nil
	r.reschedule(now)
}

// CompletionInput resolves one occurrence.
type CompletionInput struct {
	// Occurrence is the next_scheduled value the caller acted on. It guards
	// against two deliveries resolving the same occurrence.
	Occurrence time.Time
	Status     Status
	Notes      string
	// At is when the occurrence was completed. Zero means now.
	At         time.Time
	RecordedBy *int64
}

// RecordCompletion resolves the pending occurrence and rolls the schedule
// forward. It fails with ErrNotDue when nothing is pending and with
// ErrConflict when in.Occurrence is not the pending occurrence. On error the
// reminder is unchanged.
func (r *Reminder) RecordCompletion(in CompletionInput, now time.Time) (Completion, error) {
	if !in.Status.Valid() {
		return Completion{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, in.Status)
	}

	var occurrence time.Time
	switch r.State() {
	case StatePending:
		if !in.Occurrence.Equal(*r.NextScheduled) {
			return Completion{}, ErrConflict
		}
		occurrence = *r.NextScheduled
	case StateInactive:
		if r.Suspended == nil || !in.Occurrence.Equal(*r.Suspended) {
			return Completion{}, ErrNotDue
		}
		occurrence = *r.Suspended
	default:
		return Completion{}, ErrNotDue
	}

	c := Completion{
		ReminderID:    r.ID,
		ScheduledTime: occurrence,
		Status:        in.Status,
		Notes:         in.Notes,
		RecordedBy:    in.RecordedBy,
		CreatedAt:     now,
	}
	if in.Status == StatusCompleted {
		at := in.At
		if at.IsZero() {
			at = now
		}
		c.CompletedTime = &at
	}

	r.History = append(r.History, c)
	r.Stats.record(in.Status)
	r.LastScheduled = &occurrence

	if r.Active {
		r.reschedule(now)
	} else {
		r.Suspended = nil
	}
	return c, nil
}
