package store

import (
	"database/sql"
	"fmt"

	"github.com/wrenfield/starling/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationCols = `id, recipient_id, family_id, kind, title, message, child_id, related_id, is_read, created_at`

func scanNotification(s scanner) (*model.Notification, error) {
	var n model.Notification
	var childID, relatedID sql.NullInt64
	var read int

	err := s.Scan(
		&n.ID, &n.RecipientID, &n.FamilyID, &n.Kind, &n.Title, &n.Message,
		&childID, &relatedID, &read, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if childID.Valid {
		n.ChildID = &childID.Int64
	}
	if relatedID.Valid {
		n.RelatedID = &relatedID.Int64
	}
	n.Read = read != 0
	return &n, nil
}

func (s *NotificationStore) Create(n *model.Notification) (*model.Notification, error) {
	var childID, relatedID sql.NullInt64
	if n.ChildID != nil {
		childID = sql.NullInt64{Int64: *n.ChildID, Valid: true}
	}
	if n.RelatedID != nil {
		relatedID = sql.NullInt64{Int64: *n.RelatedID, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO notifications (recipient_id, family_id, kind, title, message, child_id, related_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.RecipientID, n.FamilyID, n.Kind, n.Title, n.Message, childID, relatedID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *NotificationStore) GetByID(id int64) (*model.Notification, error) {
	row := s.db.QueryRow(`SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// ListForRecipient returns a recipient's notifications, newest first.
func (s *NotificationStore) ListForRecipient(recipientID int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + notificationCols + ` FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY id DESC LIMIT ?`

	rows, err := s.db.Query(query, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// UnreadCount is the live aggregate over unread rows for a recipient.
func (s *NotificationStore) UnreadCount(recipientID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`,
		recipientID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

// MarkRead marks a single notification read.
func (s *NotificationStore) MarkRead(id, recipientID int64) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND recipient_id = ?`,
		id, recipientID,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification unread at call time. The set is
// bounded by the max id observed first, so rows created while the update
// runs stay unread.
func (s *NotificationStore) MarkAllRead(recipientID int64) (int64, error) {
	var maxID sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(id) FROM notifications WHERE recipient_id = ? AND is_read = 0`,
		recipientID,
	).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("find unread bound: %w", err)
	}
	if !maxID.Valid {
		return 0, nil
	}

	result, err := s.db.Exec(
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0 AND id <= ?`,
		recipientID, maxID.Int64,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
