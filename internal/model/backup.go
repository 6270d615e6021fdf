package model

import "time"

// Backup states.
const (
	BackupStateRunning = "running"
	BackupStateDone    = "done"
	BackupStateFailed  = "failed"
)

type Backup struct {
	ID        int64      `json:"id"`
	ObjectKey string     `json:"object_key"`
	SizeBytes int64      `json:"size_bytes"`
	State     string     `json:"state"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
}
