package model

import "time"

type PushSubscription struct {
	ID         int64     `json:"id"`
	MemberID   int64     `json:"member_id"`
	FamilyID   int64     `json:"family_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}

type NotificationPreference struct {
	ID        int64     `json:"id"`
	MemberID  int64     `json:"member_id"`
	FamilyID  int64     `json:"family_id"`
	Kind      string    `json:"kind"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
