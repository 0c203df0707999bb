package model

import (
	"time"
)

// Lease is a distributed lock on an orchestration instance
type Lease struct {
	InstanceID string    `json:"instance_id" bson:"instance_id"`
	LockedBy   string    `json:"locked_by" bson:"locked_by"`   // Pod identifier (hostname)
	LockedAt   time.Time `json:"locked_at" bson:"locked_at"`   // Lock acquisition timestamp
	ExpiresAt  time.Time `json:"expires_at" bson:"expires_at"` // Lock expiration (TTL)
}
