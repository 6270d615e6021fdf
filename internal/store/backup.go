package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/wrenfield/starling/internal/model"
)

type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

func (s *BackupStore) Start(objectKey string) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO backups (object_key, state) VALUES (?, ?)`,
		objectKey, model.BackupStateRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("insert backup: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *BackupStore) Finish(id, sizeBytes int64) error {
	_, err := s.db.Exec(
		`UPDATE backups SET state = ?, size_bytes = ?, done_at = ? WHERE id = ?`,
		model.BackupStateDone, sizeBytes, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finish backup: %w", err)
	}
	return nil
}

func (s *BackupStore) Fail(id int64, msg string) error {
	_, err := s.db.Exec(
		`UPDATE backups SET state = ?, error = ?, done_at = ? WHERE id = ?`,
		model.BackupStateFailed, msg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("fail backup: %w", err)
	}
	return nil
}

// DeleteOlderThan removes backup records started before the cutoff and
// returns their object keys so the caller can delete the stored objects.
func (s *BackupStore) DeleteOlderThan(before time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT object_key FROM backups WHERE started_at < ?`, before)
	if err != nil {
		return nil, fmt.Errorf("list old backups: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan object key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.Exec(`DELETE FROM backups WHERE started_at < ?`, before); err != nil {
		return nil, fmt.Errorf("delete old backups: %w", err)
	}
	return keys, nil
}

// List returns recent backups, newest first.
func (s *BackupStore) List(limit int) ([]model.Backup, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, object_key, size_bytes, state, error, started_at, done_at
		 FROM backups ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		var b model.Backup
		var doneAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.ObjectKey, &b.SizeBytes, &b.State, &b.Error, &b.StartedAt, &doneAt); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		if doneAt.Valid {
			b.DoneAt = &doneAt.Time
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}
