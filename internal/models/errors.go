package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoPrep             = errors.New("requested tender preparation does not exist")
	ErrLockHeld           = errors.New("edit lock is held by another user")
	ErrLockNotHeld        = errors.New("caller does not hold the edit lock")
	ErrNotAssigned        = errors.New("user is not an assigned officer of this preparation")
	ErrForbidden          = errors.New("user does not have permission for this operation")
	ErrInvalidTransition  = errors.New("operation is not allowed in the current preparation status")
	ErrAlreadyApproved    = errors.New("user already has a live approval in the current round")
	ErrNoActiveApproval   = errors.New("user has no live approval to withdraw")
	ErrApprovalBlocksEdit = errors.New("editing is disabled while a live officer approval exists")
	ErrInvalidSignature   = errors.New("signature payload is missing or malformed")
	ErrCommentFrozen      = errors.New("signoff comment can no longer be changed after the first officer signature")
	ErrPrepFinalized      = errors.New("preparation is already submitted or rejected")
)

// LockHeldError carries the current holder so the caller can tell the
// user who to wait for. errors.Is(err, ErrLockHeld) matches it.
type LockHeldError struct {
	OwnerId   string
	ExpiresAt time.Time
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("edit lock is held by %s until %s", e.OwnerId, e.ExpiresAt.Format(time.RFC3339))
}

func (e *LockHeldError) Unwrap() error {
	return ErrLockHeld
}
