package model

import "time"

// Star types partition a child's balance; the economy tracks each
// independently.
const (
	StarTypeGrowth = "growth"
	StarTypeWeekly = "weekly"
)

type StarBalance struct {
	ChildID   int64     `json:"child_id"`
	StarType  string    `json:"star_type"`
	Amount    int       `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LedgerEntry is one applied signed delta. EntryID is derived from the
// lifecycle transition that caused it, so replaying the same transition
// hits the unique constraint instead of mutating the balance again.
type LedgerEntry struct {
	ID           int64     `json:"id"`
	EntryID      string    `json:"entry_id"`
	ChildID      int64     `json:"child_id"`
	StarType     string    `json:"star_type"`
	Delta        int       `json:"delta"`
	BalanceAfter int       `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}
