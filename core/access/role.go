package access

import "strings"

type Role string

// Roles
const (
	RoleNone     Role = ""
	RoleAdmin    Role = "admin"
	RoleTeacher  Role = "teacher"
	RoleGuardian Role = "guardian"
)

var AllRoles = []Role{RoleAdmin, RoleTeacher, RoleGuardian}

// ParseRole returns the Role named `s`, or RoleNone if `s` is unknown.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleTeacher, RoleGuardian:
		return r, true
	}
	return RoleNone, false
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

func (r Role) String() string { return string(r) }

// RoleSet is a set of roles allowed into an area.
type RoleSet []Role

func NewRoleSet(roles ...Role) RoleSet { return RoleSet(roles) }

func (rs RoleSet) Has(role Role) bool {
	if role == RoleNone {
		return false
	}
	for _, r := range rs {
		if r == role {
			return true
		}
	}
	return false
}

// Corroboration tells whether the role hint has been confirmed by a live session.
type Corroboration int

const (
	Uncorroborated Corroboration = iota
	Pending
	Corroborated
)

func (c Corroboration) String() string {
	switch c {
	case Pending:
		return "pending"
	case Corroborated:
		return "corroborated"
	default:
		return "uncorroborated"
	}
}

// Viewer identifies the caller of a scoped read or a capability-checked write.
type Viewer struct {
	Role   Role
	UserID string
	Email  string
}

func (v Viewer) Capabilities() Capabilities { return CapabilitiesOf(v.Role) }
