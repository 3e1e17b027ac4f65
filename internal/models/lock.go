package models

import "time"

// EditLock is a leased exclusive claim on a preparation's content.
// At most one row exists per prep; a row whose lease has run out is
// treated as absent by every reader, no sweeper involved.
type EditLock struct {
	PrepId        string    `json:"prepId"`
	OwnerId       string    `json:"ownerId"`
	AcquiredAt    time.Time `json:"acquiredAt"`
	LastRenewedAt time.Time `json:"lastRenewedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (l *EditLock) Live(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}

func (l *EditLock) OwnedBy(userId string, now time.Time) bool {
	return l.Live(now) && l.OwnerId == userId
}

const (
	LockStateNone  = "None"
	LockStateOwned = "Owned"
)

// LockState is the read-model view of a lock: either nothing, or an
// owner with an expiry.
type LockState struct {
	State     string     `json:"state"`
	OwnerId   string     `json:"ownerId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
