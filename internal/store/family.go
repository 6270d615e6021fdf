package store

import (
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/wrenfield/starling/internal/model"
)

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

const familyCols = `id, name, created_at, updated_at`

func scanFamily(s scanner) (*model.Family, error) {
	var f model.Family
	if err := s.Scan(&f.ID, &f.Name, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *FamilyStore) CreateFamily(name string) (*model.Family, error) {
	result, err := s.db.Exec(`INSERT INTO families (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetFamily(id)
}

func (s *FamilyStore) GetFamily(id int64) (*model.Family, error) {
	row := s.db.QueryRow(`SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

// --- Member methods ---

const memberCols = `id, family_id, name, role, color, emoji, pin_hash IS NOT NULL, created_at, updated_at`

func scanMember(s scanner) (*model.FamilyMember, error) {
	var m model.FamilyMember
	err := s.Scan(&m.ID, &m.FamilyID, &m.Name, &m.Role, &m.Color, &m.Emoji, &m.HasPIN, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *FamilyStore) CreateMember(familyID int64, name, role, color, emoji string) (*model.FamilyMember, error) {
	if role != model.RoleParent && role != model.RoleChild {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	result, err := s.db.Exec(
		`INSERT INTO family_members (family_id, name, role, color, emoji) VALUES (?, ?, ?, ?, ?)`,
		familyID, name, role, color, emoji,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetMember(id)
}

func (s *FamilyStore) GetMember(id int64) (*model.FamilyMember, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM family_members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *FamilyStore) ListMembers(familyID int64) ([]model.FamilyMember, error) {
	rows, err := s.db.Query(
		`SELECT `+memberCols+` FROM family_members WHERE family_id = ? ORDER BY role ASC, name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// ListFamilyIDs returns the ids of every family. Used by background jobs
// that walk all families.
func (s *FamilyStore) ListFamilyIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM families ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list family ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan family id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListParents returns only the parent members of a family.
func (s *FamilyStore) ListParents(familyID int64) ([]model.FamilyMember, error) {
	rows, err := s.db.Query(
		`SELECT `+memberCols+` FROM family_members WHERE family_id = ? AND role = 'parent' ORDER BY name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan parent: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// ListChildren returns only the child members of a family.
func (s *FamilyStore) ListChildren(familyID int64) ([]model.FamilyMember, error) {
	rows, err := s.db.Query(
		`SELECT `+memberCols+` FROM family_members WHERE family_id = ? AND role = 'child' ORDER BY name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *FamilyStore) UpdateMember(id int64, name, color, emoji string) (*model.FamilyMember, error) {
	_, err := s.db.Exec(
		`UPDATE family_members SET name = ?, color = ?, emoji = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, color, emoji, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return s.GetMember(id)
}

func (s *FamilyStore) DeleteMember(id int64) error {
	_, err := s.db.Exec(`DELETE FROM family_members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// SetPIN hashes and stores a device-gate PIN for a member.
func (s *FamilyStore) SetPIN(id int64, pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE family_members SET pin_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(hash), id,
	)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

// ClearPIN removes a member's PIN.
func (s *FamilyStore) ClearPIN(id int64) error {
	_, err := s.db.Exec(
		`UPDATE family_members SET pin_hash = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

// VerifyPIN checks a PIN against the stored hash. Members without a PIN
// verify as false.
func (s *FamilyStore) VerifyPIN(id int64, pin string) (bool, error) {
	var hash sql.NullString
	err := s.db.QueryRow(`SELECT pin_hash FROM family_members WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get pin hash: %w", err)
	}
	if !hash.Valid {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(pin)) == nil, nil
}
