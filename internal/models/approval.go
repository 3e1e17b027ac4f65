package models

import "time"

type ParticipantRole string

const (
	RoleOfficer ParticipantRole = "Officer"
	RoleManager ParticipantRole = "Manager"
)

type Decision string

const (
	DecisionApproved  Decision = "Approved"
	DecisionReturned  Decision = "Returned"
	DecisionRejected  Decision = "Rejected"
	DecisionWithdrawn Decision = "Withdrawn"
)

// ValidManagerDecision reports whether d is one of the decisions a
// manager may submit on a pending preparation.
func ValidManagerDecision(d Decision) bool {
	switch d {
	case DecisionApproved, DecisionReturned, DecisionRejected:
		return true
	default:
		return false
	}
}

// ApprovalRecord is one entry of the append-only approval ledger.
// Records are never updated or deleted; an officer's live decision for
// a round is their latest record in it, so a Withdrawn record
// supersedes an earlier Approved one. Records from previous rounds are
// kept for history and are never live.
type ApprovalRecord struct {
	Id            string          `json:"id"`
	PrepId        string          `json:"prepId"`
	Round         int             `json:"round"`
	ParticipantId string          `json:"participantId"`
	Role          ParticipantRole `json:"role"`
	Decision      Decision        `json:"decision"`
	Reason        string          `json:"reason,omitempty"`
	DecidedAt     time.Time       `json:"decidedAt"`
}
