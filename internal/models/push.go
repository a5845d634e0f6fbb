package models

import "time"

type PushSubscription struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Endpoint       string     `json:"endpoint"`
	P256dhKey      string     `json:"p256dh_key"`
	AuthKey        string     `json:"auth_key"`
	ExpirationTime *time.Time `json:"expiration_time,omitempty"`
	UserAgent      *string    `json:"user_agent,omitempty"`
	Platform       *string    `json:"platform,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
