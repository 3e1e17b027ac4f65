package models

import "time"

type PrepStatus string

const (
	PrepDrafting  PrepStatus = "Drafting"
	PrepPending   PrepStatus = "PendingManagerApproval"
	PrepApproved  PrepStatus = "PrepApproved"
	PrepSubmitted PrepStatus = "Submitted"
	PrepRejected  PrepStatus = "RejectedArchived"
)

func ValidPrepStatus(s PrepStatus) bool {
	switch s {
	case PrepDrafting, PrepPending, PrepApproved, PrepSubmitted, PrepRejected:
		return true
	default:
		return false
	}
}

// Final reports whether no further workflow mutation is possible.
func (s PrepStatus) Final() bool {
	return s == PrepSubmitted || s == PrepRejected
}

// TenderPrep is the working copy of a tender before publishing.
// Status is only ever assigned by the workflow service; Round counts
// drafting cycles and advances on manager return or when the last
// officer approval of a round is withdrawn.
type TenderPrep struct {
	Id             string     `json:"id"`
	Status         PrepStatus `json:"status"`
	Round          int        `json:"round"`
	ManagerId      string     `json:"managerId"`
	OfficerIds     []string   `json:"officerIds"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	SignoffComment string     `json:"signoffComment"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"-"`
}

func (p *TenderPrep) OfficerAssigned(userId string) bool {
	for _, id := range p.OfficerIds {
		if id == userId {
			return true
		}
	}
	return false
}

func (p *TenderPrep) Participant(userId string) bool {
	return userId == p.ManagerId || p.OfficerAssigned(userId)
}

// SignoffRole resolves which signature slot a user owns, if any. The
// ledger is keyed by real participant identity, so a caller without a
// slot cannot sign no matter how privileged they are.
func (p *TenderPrep) SignoffRole(userId string) (ParticipantRole, bool) {
	if userId == p.ManagerId {
		return RoleManager, true
	}
	if p.OfficerAssigned(userId) {
		return RoleOfficer, true
	}
	return "", false
}

// Editability is the per-request edit eligibility conjunction. It is
// recomputed on every call, never stored: lock expiry and approval
// withdrawal both change it without touching the prep row.
type Editability struct {
	Editable       bool `json:"editable"`
	StatusOk       bool `json:"statusOk"`
	HoldsLock      bool `json:"holdsLock"`
	NoLiveApproval bool `json:"noLiveApproval"`
}

// PrepView is the combined read model of one preparation.
type PrepView struct {
	TenderPrep
	Lock          LockState        `json:"lock"`
	LiveApprovals []ApprovalRecord `json:"liveApprovals"`
	Signoffs      []SignoffRecord  `json:"signoffs"`
}
