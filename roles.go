package archive

// Role identifies an archive account's access level. The identifiers are
// part of the API contract; display labels are Persian.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleResearcher Role = "researcher"
	RoleLawyer     Role = "lawyer"
	RoleAdmin      Role = "admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleViewer, RoleResearcher, RoleLawyer, RoleAdmin:
		return true
	default:
		return false
	}
}

// DisplayName returns the Persian label shown in the UI for this role.
func (r Role) DisplayName() string {
	switch r {
	case RoleAdmin:
		return "مدیر سیستم"
	case RoleLawyer:
		return "وکیل"
	case RoleResearcher:
		return "پژوهشگر"
	case RoleViewer:
		return "بازدیدکننده"
	default:
		return string(r)
	}
}

// AllRoles returns the predefined roles from lowest to highest privilege.
func AllRoles() []Role {
	return []Role{
		RoleViewer,
		RoleResearcher,
		RoleLawyer,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}

// RoleSet is an explicit allow-list for a guarded resource. Membership is
// the only check: no role is implicitly included in another's gate.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from the given roles, skipping invalid ones.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		if r.IsValid() {
			set[r] = struct{}{}
		}
	}
	return set
}

// Contains reports whether r is in the allow-list.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// Roles returns the members from lowest to highest privilege.
func (s RoleSet) Roles() []Role {
	out := make([]Role, 0, len(s))
	for _, r := range AllRoles() {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

// IsAllowed is the pure membership predicate used by route guards and
// conditional rendering.
func IsAllowed(userRole Role, allowed RoleSet) bool {
	return allowed.Contains(userRole)
}

// Convenience gates. Each one enumerates its members: "and above" is a
// naming convention for readers, not a hierarchy the code walks.
var (
	AdminOnly          = NewRoleSet(RoleAdmin)
	LawyerAndAbove     = NewRoleSet(RoleLawyer, RoleAdmin)
	ResearcherAndAbove = NewRoleSet(RoleResearcher, RoleLawyer, RoleAdmin)
	AnyRole            = NewRoleSet(RoleViewer, RoleResearcher, RoleLawyer, RoleAdmin)
)
