package auth

import "time"

// User is an account in the school system.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	IsActive     bool
	IsVerified   bool
	LastLogin    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is a server-side session row. Rows are never deleted; revocation
// and expiry only flip IsActive so the audit trail survives.
type Session struct {
	ID              string
	UserID          string
	SessionToken    string
	IPAddress       string
	UserAgent       string
	ImpersonatedBy  string
	IsImpersonation bool
	IsActive        bool
	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastActivity    time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// AuditEntry is an immutable record of a privilege-sensitive event.
type AuditEntry struct {
	ID        string
	UserID    string
	Action    string
	Details   string
	Timestamp time.Time
}

// ClientInfo carries optional request metadata recorded on sessions.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// Identity is the resolved caller: the user plus impersonation linkage when
// the current session is a delegated one.
type Identity struct {
	User           *User
	ImpersonatedBy string
}

// Role returns the identity's effective role.
func (id Identity) Role() Role {
	if id.User == nil {
		return RoleGuest
	}
	return id.User.Role
}

// IsImpersonated reports whether the identity was assumed by an admin.
func (id Identity) IsImpersonated() bool {
	return id.ImpersonatedBy != ""
}
