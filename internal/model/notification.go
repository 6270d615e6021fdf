package model

import "time"

// Notification kinds, one per lifecycle transition plus the daily
// due-task reminder.
const (
	NotifTaskCompleted      = "task_completed"
	NotifTaskApproved       = "task_approved"
	NotifTaskRejected       = "task_rejected"
	NotifRewardRequested    = "reward_requested"
	NotifRewardApproved     = "reward_approved"
	NotifRewardRejected     = "reward_rejected"
	NotifRewardAutoApproved = "reward_auto_approved"
	NotifTaskDue            = "task_due"
)

// Notification is an in-app record created once per lifecycle transition.
// RelatedID points back at the completion or request that caused it; only
// the Read flag is ever mutated after creation.
type Notification struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipient_id"`
	FamilyID    int64     `json:"family_id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	ChildID     *int64    `json:"child_id,omitempty"`
	RelatedID   *int64    `json:"related_id,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
