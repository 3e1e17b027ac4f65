package models

type RoleClaim string

const (
	ClaimOfficer RoleClaim = "Officer"
	ClaimManager RoleClaim = "Manager"
	ClaimAdmin   RoleClaim = "Admin"
)

func ValidRoleClaim(c RoleClaim) bool {
	switch c {
	case ClaimOfficer, ClaimManager, ClaimAdmin:
		return true
	default:
		return false
	}
}

// Caller is the identity the external directory resolved for a
// request. The service never authenticates; it only checks the id
// against the prep's assignment lists, with the admin claim bypassing
// those checks.
type Caller struct {
	Id    string
	Claim RoleClaim
}

type Capabilities struct {
	CanLock             bool
	CanApproveAsOfficer bool
	CanDecideAsManager  bool
}

// CapabilitiesFor derives what a caller may do to a given prep. Admin
// is simply a caller for whom everything is true regardless of the
// assignment lists.
func CapabilitiesFor(c Caller, prep *TenderPrep) Capabilities {
	if c.Claim == ClaimAdmin {
		return Capabilities{CanLock: true, CanApproveAsOfficer: true, CanDecideAsManager: true}
	}

	caps := Capabilities{}
	if c.Claim == ClaimOfficer && prep.OfficerAssigned(c.Id) {
		caps.CanLock = true
		caps.CanApproveAsOfficer = true
	}
	if c.Claim == ClaimManager && c.Id == prep.ManagerId {
		caps.CanDecideAsManager = true
	}
	return caps
}
