package store

import (
	"database/sql"
	"fmt"

	"github.com/wrenfield/starling/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

const subscriptionCols = `id, member_id, family_id, endpoint, p256dh_key, auth_key, device_name, created_at`

func scanSubscription(s scanner) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := s.Scan(&sub.ID, &sub.MemberID, &sub.FamilyID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Subscribe upserts a push subscription keyed by endpoint.
func (s *PushStore) Subscribe(memberID, familyID int64, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	_, err := s.db.Exec(
		`INSERT INTO push_subscriptions (member_id, family_id, endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key, device_name = excluded.device_name`,
		memberID, familyID, endpoint, p256dh, auth, deviceName,
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *PushStore) ListByMember(memberID int64) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(
		`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE member_id = ? ORDER BY created_at DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *PushStore) Delete(id, familyID int64) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE id = ? AND family_id = ?`, id, familyID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// DeleteByEndpoint prunes a subscription the push service reported expired.
func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription by endpoint: %w", err)
	}
	return nil
}

// --- Preference methods ---

// SetPreference upserts a per-member notification preference.
func (s *PushStore) SetPreference(memberID, familyID int64, kind string, enabled bool) error {
	var e int
	if enabled {
		e = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO notification_preferences (member_id, family_id, kind, enabled)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(member_id, family_id, kind) DO UPDATE SET enabled = excluded.enabled, updated_at = CURRENT_TIMESTAMP`,
		memberID, familyID, kind, e,
	)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

// PreferenceEnabled reports whether a notification kind is enabled for a
// member. Unset preferences default to enabled.
func (s *PushStore) PreferenceEnabled(memberID int64, kind string) (bool, error) {
	var e int
	err := s.db.QueryRow(
		`SELECT enabled FROM notification_preferences WHERE member_id = ? AND kind = ?`,
		memberID, kind,
	).Scan(&e)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check preference: %w", err)
	}
	return e != 0, nil
}

func (s *PushStore) ListPreferences(memberID int64) ([]model.NotificationPreference, error) {
	rows, err := s.db.Query(
		`SELECT id, member_id, family_id, kind, enabled, created_at, updated_at
		 FROM notification_preferences WHERE member_id = ?`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []model.NotificationPreference
	for rows.Next() {
		var p model.NotificationPreference
		var e int
		if err := rows.Scan(&p.ID, &p.MemberID, &p.FamilyID, &p.Kind, &e, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		p.Enabled = e != 0
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}
