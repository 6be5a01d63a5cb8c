package domain

import (
	"fmt"
	"strings"
)

// Role is the persisted role of an authorized user.
type Role int

const (
	// RoleGuest is the default role assigned on first sign-in.
	RoleGuest Role = iota
	// RoleStudent identifies a student account with no operator access.
	RoleStudent
	// RoleStaff identifies a staff account with no operator access.
	RoleStaff
	// RoleCheckin grants access to the check-in station only.
	RoleCheckin
	// RoleVote grants access to the voting kiosk only.
	RoleVote
	// RoleAdmin grants the admin panel, check-in, and voting surfaces.
	RoleAdmin
	// RoleSuperadmin additionally grants security-key management.
	RoleSuperadmin
)

// String returns the wire name for the role.
func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleStaff:
		return "staff"
	case RoleCheckin:
		return "checkin"
	case RoleVote:
		return "vote"
	case RoleAdmin:
		return "admin"
	case RoleSuperadmin:
		return "superadmin"
	default:
		return "guest"
	}
}

// ParseRole maps a wire name to a Role.
func ParseRole(value string) (Role, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "guest", "":
		return RoleGuest, nil
	case "student":
		return RoleStudent, nil
	case "staff":
		return RoleStaff, nil
	case "checkin":
		return RoleCheckin, nil
	case "vote":
		return RoleVote, nil
	case "admin":
		return RoleAdmin, nil
	case "superadmin":
		return RoleSuperadmin, nil
	default:
		return RoleGuest, fmt.Errorf("unknown role %q", value)
	}
}

// Valid reports whether the role is one of the defined roles.
func (r Role) Valid() bool {
	return r >= RoleGuest && r <= RoleSuperadmin
}

// Privileged reports whether assigning this role requires a verified
// security key. Only escalations to admin or superadmin are privileged.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// Capabilities is the coarse capability set derived from a role.
type Capabilities struct {
	AdminPanel         bool
	CheckIn            bool
	Voting             bool
	ManageSecurityKeys bool
}

// capabilityTable is the single source of truth for role authorization.
// Capabilities are looked up, never inferred from rank, so adding a role
// cannot silently grant access.
var capabilityTable = map[Role]Capabilities{
	RoleSuperadmin: {AdminPanel: true, CheckIn: true, Voting: true, ManageSecurityKeys: true},
	RoleAdmin:      {AdminPanel: true, CheckIn: true, Voting: true},
	RoleCheckin:    {CheckIn: true},
	RoleVote:       {Voting: true},
}

// CapabilitiesForRole returns the capability set for a role. Roles absent
// from the table have no capabilities.
func CapabilitiesForRole(role Role) Capabilities {
	return capabilityTable[role]
}
