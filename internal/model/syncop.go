package model

import "time"

// Sync op replay outcomes.
const (
	SyncApplied        = "applied"
	SyncAlreadyApplied = "already_applied"
	SyncRejected       = "rejected"
)

// SyncOp is the recorded outcome of one replayed offline operation.
type SyncOp struct {
	OpID      string    `json:"op_id"`
	MemberID  int64     `json:"member_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
