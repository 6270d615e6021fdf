package model

import "time"

// Reward request statuses.
const (
	RequestPending      = "pending"
	RequestApproved     = "approved"
	RequestRejected     = "rejected"
	RequestAutoApproved = "auto_approved"
)

// Rejection reasons recorded on reward requests.
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonParentDeclined    = "parent_declined"
)

type Reward struct {
	ID          int64     `json:"id"`
	FamilyID    int64     `json:"family_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Cost        int       `json:"cost"`
	StarType    string    `json:"star_type"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// RewardRequest is a child's redemption request. Once the status leaves
// pending it is frozen; the reason field records why a request was rejected.
type RewardRequest struct {
	ID           int64      `json:"id"`
	RewardID     int64      `json:"reward_id"`
	ChildID      int64      `json:"child_id"`
	FamilyID     int64      `json:"family_id"`
	Cost         int        `json:"cost"`
	StarType     string     `json:"star_type"`
	Status       string     `json:"status"`
	AutoApproved bool       `json:"auto_approved"`
	Reason       string     `json:"reason,omitempty"`
	RequestedAt  time.Time  `json:"requested_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether the request has left the pending state.
func (r RewardRequest) Resolved() bool {
	return r.Status != RequestPending
}
