package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/familyhealth/internal/recurrence"
	"github.com/dukerupert/familyhealth/internal/reminder"
)

// timeLayout is fixed-width UTC so stored instants sort as text.
const timeLayout = "2006-01-02T15:04:05.000Z"

const reminderColumns = `id, family_member_id, type, title, metadata, rule, is_active,
	last_scheduled, next_scheduled, suspended,
	total_scheduled, total_completed, total_skipped, total_missed, adherence_rate,
	version, created_at, updated_at`

const completionColumns = "id, reminder_id, scheduled_time, completed_time, status, notes, recorded_by, created_at"

// ReminderStore persists reminders and their completion history in SQLite.
// It implements reminder.Repository.
type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

var _ reminder.Repository = (*ReminderStore)(nil)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func parseNullTime(ns sql.NullString, loc *time.Location) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func scanReminder(sc rowScanner) (*reminder.Reminder, error) {
	var (
		r                     reminder.Reminder
		memberID              sql.NullInt64
		metadata              sql.NullString
		ruleText              string
		last, next, suspended sql.NullString
		createdAt, updatedAt  string
	)
	err := sc.Scan(
		&r.ID, &memberID, &r.Type, &r.Title, &metadata, &ruleText, &r.Active,
		&last, &next, &suspended,
		&r.Stats.TotalScheduled, &r.Stats.TotalCompleted, &r.Stats.TotalSkipped, &r.Stats.TotalMissed, &r.Stats.AdherenceRate,
		&r.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule, err := recurrence.Parse(ruleText)
	if err != nil {
		return nil, fmt.Errorf("parse rule for reminder %d: %w", r.ID, err)
	}
	r.Rule = rule
	loc := rule.Location()

	r.FamilyMemberID = int64Ptr(memberID)
	if metadata.Valid && metadata.String != "" {
		r.Metadata = json.RawMessage(metadata.String)
	}
	if r.LastScheduled, err = parseNullTime(last, loc); err != nil {
		return nil, fmt.Errorf("parse last_scheduled: %w", err)
	}
	if r.NextScheduled, err = parseNullTime(next, loc); err != nil {
		return nil, fmt.Errorf("parse next_scheduled: %w", err)
	}
	if r.Suspended, err = parseNullTime(suspended, loc); err != nil {
		return nil, fmt.Errorf("parse suspended: %w", err)
	}
	if r.CreatedAt, err = parseTime(createdAt, time.UTC); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt, time.UTC); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &r, nil
}

func scanCompletion(sc rowScanner, loc *time.Location) (reminder.Completion, error) {
	var (
		c                    reminder.Completion
		scheduled, createdAt string
		completed            sql.NullString
		recordedBy           sql.NullInt64
	)
	if err := sc.Scan(&c.ID, &c.ReminderID, &scheduled, &completed, &c.Status, &c.Notes, &recordedBy, &createdAt); err != nil {
		return c, err
	}
	var err error
	if c.ScheduledTime, err = parseTime(scheduled, loc); err != nil {
		return c, fmt.Errorf("parse scheduled_time: %w", err)
	}
	if c.CompletedTime, err = parseNullTime(completed, loc); err != nil {
		return c, fmt.Errorf("parse completed_time: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt, time.UTC); err != nil {
		return c, fmt.Errorf("parse created_at: %w", err)
	}
	c.RecordedBy = int64Ptr(recordedBy)
	return c, nil
}

func metadataArg(m json.RawMessage) sql.NullString {
	if len(m) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(m), Valid: true}
}

// Create inserts r with version 1.
func (s *ReminderStore) Create(ctx context.Context, r *reminder.Reminder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `INSERT INTO reminders (
			family_member_id, type, title, metadata, rule, is_active,
			last_scheduled, next_scheduled, suspended,
			total_scheduled, total_completed, total_skipped, total_missed, adherence_rate,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		nullInt64(r.FamilyMemberID), r.Type, r.Title, metadataArg(r.Metadata), r.Rule.String(), r.Active,
		nullTime(r.LastScheduled), nullTime(r.NextScheduled), nullTime(r.Suspended),
		r.Stats.TotalScheduled, r.Stats.TotalCompleted, r.Stats.TotalSkipped, r.Stats.TotalMissed, r.Stats.AdherenceRate,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	ids, err := insertCompletions(ctx, tx, id, r.History)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.ID = id
	r.Version = 1
	applyCompletionIDs(r, ids)
	return nil
}

// Load returns the reminder with its history oldest first.
func (s *ReminderStore) Load(ctx context.Context, id int64) (*reminder.Reminder, error) {
	r, err := scanReminder(s.db.QueryRowContext(ctx, "SELECT "+reminderColumns+" FROM reminders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reminder.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query reminder: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+completionColumns+" FROM reminder_completions WHERE reminder_id = ? ORDER BY scheduled_time, id",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	r.History = []reminder.Completion{}
	for rows.Next() {
		c, err := scanCompletion(rows, r.Rule.Location())
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		r.History = append(r.History, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return r, nil
}

// Save writes r if the stored version is still expectedVersion. History
// records without an ID are inserted; stored records are never rewritten.
func (s *ReminderStore) Save(ctx context.Context, r *reminder.Reminder, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE reminders SET
			family_member_id = ?, type = ?, title = ?, metadata = ?, rule = ?, is_active = ?,
			last_scheduled = ?, next_scheduled = ?, suspended = ?,
			total_scheduled = ?, total_completed = ?, total_skipped = ?, total_missed = ?, adherence_rate = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		nullInt64(r.FamilyMemberID), r.Type, r.Title, metadataArg(r.Metadata), r.Rule.String(), r.Active,
		nullTime(r.LastScheduled), nullTime(r.NextScheduled), nullTime(r.Suspended),
		r.Stats.TotalScheduled, r.Stats.TotalCompleted, r.Stats.TotalSkipped, r.Stats.TotalMissed, r.Stats.AdherenceRate,
		formatTime(r.UpdatedAt),
		r.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM reminders WHERE id = ?", r.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return reminder.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check reminder: %w", err)
		}
		return reminder.ErrConflict
	}

	ids, err := insertCompletions(ctx, tx, r.ID, r.History)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.Version = expectedVersion + 1
	applyCompletionIDs(r, ids)
	return nil
}

// insertCompletions stores history records that have no ID yet and returns
// the new IDs by history index.
func insertCompletions(ctx context.Context, tx *sql.Tx, reminderID int64, history []reminder.Completion) (map[int]int64, error) {
	ids := make(map[int]int64)
	for i, c := range history {
		if c.ID != 0 {
			continue
		}
		result, err := tx.ExecContext(ctx,
			`INSERT INTO reminder_completions (reminder_id, scheduled_time, completed_time, status, notes, recorded_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			reminderID, formatTime(c.ScheduledTime), nullTime(c.CompletedTime), c.Status, c.Notes, nullInt64(c.RecordedBy), formatTime(c.CreatedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("insert completion: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
		ids[i] = id
	}
	return ids, nil
}

func applyCompletionIDs(r *reminder.Reminder, ids map[int]int64) {
	for i, id := range ids {
		r.History[i].ID = id
		r.History[i].ReminderID = r.ID
	}
}

// Query lists reminders matching f ordered by next occurrence, unscheduled
// last. History is not loaded.
func (s *ReminderStore) Query(ctx context.Context, f reminder.Filter) ([]reminder.Reminder, error) {
	var (
		where []string
		args  []any
	)
	if f.FamilyMemberID != nil {
		where = append(where, "family_member_id = ?")
		args = append(args, *f.FamilyMemberID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, *f.Active)
	}
	if f.NextFrom != nil {
		where = append(where, "next_scheduled >= ?")
		args = append(args, formatTime(*f.NextFrom))
	}
	if f.NextTo != nil {
		where = append(where, "next_scheduled <= ?")
		args = append(args, formatTime(*f.NextTo))
	}

	query := "SELECT " + reminderColumns + " FROM reminders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY next_scheduled IS NULL, next_scheduled, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	var out []reminder.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Delete removes the reminder and its history.
func (s *ReminderStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM reminder_completions WHERE reminder_id = ?", id); err != nil {
		return fmt.Errorf("delete completions: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM reminders WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return reminder.ErrNotFound
	}
	return tx.Commit()
}
