package session

// Participant role within a study group. Ordering is informal
// (admin > owner > moderator > member) and only enforced where
// moderation requires it.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOwner     Role = "owner"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// Staff roles get pre-emptive presenter control and moderation rights.
func (r Role) Staff() bool {
	switch r {
	case RoleAdmin, RoleOwner, RoleModerator:
		return true
	}
	return false
}

// Reports whether performer may take a moderation action against target.
// The check is target-relative: a moderator may act on plain members but
// never on another staff member. Admins and owners are unrestricted.
func CanModerate(performer, target Role) bool {
	if !performer.Staff() {
		return false
	}
	if performer == RoleModerator && target.Staff() {
		return false
	}
	return true
}

// A verified participant identity, produced by the auth layer before the
// connection reaches the coordinator.
type Identity struct {
	ID   string
	Role Role
	Name string
}
