package auth

import "fmt"

// ScopeKind classifies how wide a resource scope is.
type ScopeKind int

const (
	// ScopeAll grants access to every resource; callers apply no filter.
	ScopeAll ScopeKind = iota
	// ScopeOwnOnly restricts access to resources owned by the subject.
	ScopeOwnOnly
	// ScopeSpecific restricts access to an explicit id set.
	ScopeSpecific
)

// ResourceScope is the set of resource ids an identity may act upon. Domain
// modules translate it into their own query filters; it is never a bare
// boolean so "all" and "none" stay distinguishable.
type ResourceScope struct {
	Kind ScopeKind
	IDs  []string
}

// Contains reports whether the scope admits the given resource id.
func (s ResourceScope) Contains(id string) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	default:
		for _, v := range s.IDs {
			if v == id {
				return true
			}
		}
		return false
	}
}

// AccessibleResourceIDs computes the student-record scope for a role.
// Teachers get ScopeAll here; the calling domain module narrows it to their
// own classes, since class membership is not tracked by this engine.
func AccessibleResourceIDs(role Role, subjectUserID string, relatedIDs []string) ResourceScope {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleTeacher:
		return ResourceScope{Kind: ScopeAll}
	case RoleStudent:
		return ResourceScope{Kind: ScopeOwnOnly, IDs: []string{subjectUserID}}
	case RoleParent:
		ids := make([]string, len(relatedIDs))
		copy(ids, relatedIDs)
		return ResourceScope{Kind: ScopeSpecific, IDs: ids}
	default:
		return ResourceScope{Kind: ScopeSpecific}
	}
}

// IsResourceOwner reports whether the caller owns the resource or holds an
// admin-tier role.
func IsResourceOwner(callerID, ownerID string, role Role) bool {
	if role.IsAdminTier() {
		return true
	}
	return callerID != "" && callerID == ownerID
}

// RequirePermission is the single choke point for permission checks. It
// fails with ErrForbidden naming the missing permission.
func RequirePermission(role Role, perm Permission) error {
	if !HasPermission(role, perm) {
		return fmt.Errorf("%w: missing permission %s", ErrForbidden, perm)
	}
	return nil
}
