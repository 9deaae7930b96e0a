package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/familyhealth/internal/model"
)

// ErrMemberNotFound is returned by PIN lookups for a missing member.
var ErrMemberNotFound = errors.New("family member not found")

const memberColumns = `m.id, m.name, m.color, m.avatar_emoji, m.pin IS NOT NULL, m.sort_order,
	(SELECT COUNT(*) FROM reminders r WHERE r.family_member_id = m.id AND r.is_active = 1),
	m.created_at, m.updated_at`

type FamilyMemberStore struct {
	db *sql.DB
}

func NewFamilyMemberStore(db *sql.DB) *FamilyMemberStore {
	return &FamilyMemberStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(sc rowScanner) (*model.FamilyMember, error) {
	var m model.FamilyMember
	if err := sc.Scan(&m.ID, &m.Name, &m.Color, &m.AvatarEmoji, &m.HasPIN, &m.SortOrder, &m.ActiveReminders, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *FamilyMemberStore) Create(ctx context.Context, name, color, avatarEmoji string) (*model.FamilyMember, error) {
	var maxOrder int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(sort_order), -1) FROM family_members").Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("query max sort_order: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO family_members (name, color, avatar_emoji, sort_order) VALUES (?, ?, ?, ?)",
		name, color, avatarEmoji, maxOrder+1,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family member: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *FamilyMemberStore) List(ctx context.Context) ([]model.FamilyMember, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+memberColumns+" FROM family_members m ORDER BY m.sort_order, m.id")
	if err != nil {
		return nil, fmt.Errorf("query family members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// GetByID returns nil, nil when the member does not exist.
func (s *FamilyMemberStore) GetByID(ctx context.Context, id int64) (*model.FamilyMember, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM family_members m WHERE m.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query family member: %w", err)
	}
	return m, nil
}

func (s *FamilyMemberStore) Update(ctx context.Context, id int64, name, color, avatarEmoji string) (*model.FamilyMember, error) {
	_, err := s.db.ExecContext(ctx,
		"UPDATE family_members SET name = ?, color = ?, avatar_emoji = ? WHERE id = ?",
		name, color, avatarEmoji, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update family member: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes the member. Their reminders stay and become unassigned.
func (s *FamilyMemberStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM family_members WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete family member: %w", err)
	}
	return nil
}

func (s *FamilyMemberStore) SetPIN(ctx context.Context, id int64, hashedPIN string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE family_members SET pin = ? WHERE id = ?", hashedPIN, id)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *FamilyMemberStore) ClearPIN(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE family_members SET pin = NULL WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

// GetPINHash returns "" when the member has no PIN.
func (s *FamilyMemberStore) GetPINHash(ctx context.Context, id int64) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT pin FROM family_members WHERE id = ?", id).Scan(&pin)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMemberNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	if !pin.Valid {
		return "", nil
	}
	return pin.String, nil
}

func (s *FamilyMemberStore) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM family_members WHERE name = ? AND id != ?",
		name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check name exists: %w", err)
	}
	return count > 0, nil
}
