package auth

import "context"

// Store describes the persistence operations the engine needs. All methods
// are assumed transactional and durable; session rows are exclusively owned
// by this package and must not be mutated elsewhere.
type Store interface {
	Users() UserStore
	Sessions() SessionStore
	Audit() AuditStore
}

// UserStore manages user accounts.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailOrUsername(ctx context.Context, emailOrUsername string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateRole(ctx context.Context, userID string, role Role) error
	SetActive(ctx context.Context, userID string, active bool) error
	SetVerified(ctx context.Context, userID string, verified bool) error
	TouchLastLogin(ctx context.Context, userID string) error
}

// SessionStore manages session lifecycle. Revocation flips IsActive; rows
// are retained for audit.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	FindActiveImpersonation(ctx context.Context, userID, impersonatedBy string) (*Session, error)
	ListActive(ctx context.Context, userID string) ([]*Session, error)
	Revoke(ctx context.Context, sessionID string) error
	// RevokeAllForUser deactivates every active session owned by the user,
	// optionally keeping impersonation sessions. The update must be a single
	// statement so it cannot interleave with a concurrent session create.
	RevokeAllForUser(ctx context.Context, userID string, includeImpersonation bool) (int64, error)
	TouchActivity(ctx context.Context, sessionID string) error
	DeactivateExpired(ctx context.Context) (int64, error)
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}
