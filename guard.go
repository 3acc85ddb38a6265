package archive

// Access is the outcome of a gate check.
type Access string

const (
	// AccessUnauthenticated means there is no authenticated session; it
	// takes precedence over AccessForbidden so the UI shows a login view,
	// not a permissions error.
	AccessUnauthenticated Access = "unauthenticated"
	// AccessForbidden means the session's role is not in the allow-list.
	AccessForbidden Access = "forbidden"
	AccessGranted   Access = "granted"
)

// AccessDecision carries the gate outcome plus the details a Forbidden
// view needs to explain itself.
type AccessDecision struct {
	Access      Access
	CurrentRole Role
	Allowed     RoleSet
}

func (d AccessDecision) Granted() bool { return d.Access == AccessGranted }

// Guard decides whether a session may access a resource gated by the given
// allow-list. Authentication is checked before role.
func Guard(session Snapshot, allowed RoleSet) AccessDecision {
	if session.Status != StatusAuthenticated || session.User == nil {
		return AccessDecision{Access: AccessUnauthenticated, Allowed: allowed}
	}

	if !IsAllowed(session.User.Role, allowed) {
		return AccessDecision{
			Access:      AccessForbidden,
			CurrentRole: session.User.Role,
			Allowed:     allowed,
		}
	}

	return AccessDecision{
		Access:      AccessGranted,
		CurrentRole: session.User.Role,
		Allowed:     allowed,
	}
}
