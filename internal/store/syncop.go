package store

import (
	"database/sql"
	"fmt"

	"github.com/wrenfield/starling/internal/model"
)

// SyncOpStore records offline operations that have already been replayed,
// keyed by the client-generated op id.
type SyncOpStore struct {
	db *sql.DB
}

func NewSyncOpStore(db *sql.DB) *SyncOpStore {
	return &SyncOpStore{db: db}
}

// Get returns the recorded outcome for an op id, or nil if unseen.
func (s *SyncOpStore) Get(opID string) (*model.SyncOp, error) {
	row := s.db.QueryRow(
		`SELECT op_id, member_id, kind, status, detail, created_at FROM sync_ops WHERE op_id = ?`, opID,
	)
	var op model.SyncOp
	err := row.Scan(&op.OpID, &op.MemberID, &op.Kind, &op.Status, &op.Detail, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync op: %w", err)
	}
	return &op, nil
}

// Record stores the outcome of a replayed op. Recording an op id twice is a
// no-op; the first outcome wins.
func (s *SyncOpStore) Record(opID string, memberID int64, kind, status, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_ops (op_id, member_id, kind, status, detail) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(op_id) DO NOTHING`,
		opID, memberID, kind, status, detail,
	)
	if err != nil {
		return fmt.Errorf("record sync op: %w", err)
	}
	return nil
}
