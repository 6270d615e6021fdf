package model

import "time"

// Task types.
const (
	TaskOneTime    = "one_time"
	TaskRecurring  = "recurring"
	TaskBucketList = "bucket_list"
)

// Completion statuses.
const (
	CompletionPending  = "pending_approval"
	CompletionApproved = "approved"
	CompletionRejected = "rejected"
)

type Task struct {
	ID             int64      `json:"id"`
	FamilyID       int64      `json:"family_id"`
	Title          string     `json:"title"`
	Category       string     `json:"category"`
	TaskType       string     `json:"task_type"`
	RecurrenceRule string     `json:"recurrence_rule,omitempty"`
	StarValue      int        `json:"star_value"`
	StarType       string     `json:"star_type"`
	Active         bool       `json:"active"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`
	AssignedTo     []int64    `json:"assigned_to"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Recurring reports whether the task carries a recurrence rule.
func (t Task) Recurring() bool {
	return t.TaskType == TaskRecurring
}

// Archived reports whether the task has been soft-deleted.
func (t Task) Archived() bool {
	return t.ArchivedAt != nil
}

// TaskCompletion is one claimed occurrence of a task by a child. For
// recurring tasks the occurrence date is part of the identity: at most one
// non-rejected completion may exist per (task, child, occurrence date).
type TaskCompletion struct {
	ID             int64      `json:"id"`
	TaskID         int64      `json:"task_id"`
	ChildID        int64      `json:"child_id"`
	FamilyID       int64      `json:"family_id"`
	OccurrenceDate string     `json:"occurrence_date"` // YYYY-MM-DD
	Status         string     `json:"status"`
	StarsAwarded   *int       `json:"stars_awarded,omitempty"`
	CompletedAt    time.Time  `json:"completed_at"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`
}
