package models

import (
	"time"

	"github.com/google/uuid"
)

// Verification tracks the one-time code issued to prove control of a PHONE
// or EMAIL key, and the failed attempts against it.
type Verification struct {
	KeyID          uuid.UUID
	UserID         uuid.UUID
	CodeHash       string
	FailedAttempts int
	Locked         bool
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

func (v *Verification) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}
