package store

import (
	"database/sql"
	"fmt"
	"strconv"
)

// Setting keys.
const (
	SettingAutoApproveThreshold = "auto_approve_threshold"
	SettingAutoApproveEnabled   = "auto_approve_enabled"
)

// SettingsStore is a per-family key-value bag for policy knobs.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(familyID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM family_settings WHERE family_id = ? AND key = ?`,
		familyID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

func (s *SettingsStore) Set(familyID int64, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO family_settings (family_id, key, value)
		 VALUES (?, ?, ?)
		 ON CONFLICT(family_id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		familyID, key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// GetInt reads a numeric setting, returning def when unset or unparseable.
func (s *SettingsStore) GetInt(familyID int64, key string, def int) (int, error) {
	value, err := s.Get(familyID, key)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def, nil
	}
	return n, nil
}

// GetBool reads a boolean setting, returning def when unset.
func (s *SettingsStore) GetBool(familyID int64, key string, def bool) (bool, error) {
	value, err := s.Get(familyID, key)
	if err != nil {
		return false, err
	}
	switch value {
	case "":
		return def, nil
	case "true", "1":
		return true, nil
	default:
		return false, nil
	}
}
