package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusgate.org/internal/obs"
	"campusgate.org/internal/roleconfig"
)

const (
	// Impersonation sessions get a bounded delegation window, deliberately
	// shorter than the normal login TTL.
	defaultImpersonationTTL = 15 * time.Minute

	impersonationTokenPrefix = "imp_"
)

// Service is the authorization gate and session manager. Every request
// enters through CurrentIdentity; privilege-sensitive transitions go through
// the session and impersonation operations below.
type Service struct {
	store  Store
	tokens *TokenService
	roles  *roleconfig.Service

	now              func() time.Time
	impersonationTTL time.Duration
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithImpersonationTTL overrides the impersonation session lifetime.
func WithImpersonationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.impersonationTTL = ttl
		}
	}
}

// NewService constructs the engine from its collaborators.
func NewService(store Store, tokens *TokenService, roles *roleconfig.Service, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if roles == nil {
		return nil, errors.New("auth: role config is required")
	}
	s := &Service{
		store:            store,
		tokens:           tokens,
		roles:            roles,
		now:              time.Now,
		impersonationTTL: defaultImpersonationTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tokens exposes the token service to the HTTP layer.
func (s *Service) Tokens() *TokenService { return s.tokens }

// RoleConfig exposes the role configuration service.
func (s *Service) RoleConfig() *roleconfig.Service { return s.roles }

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// RegisterInput carries the self-registration fields.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an account. The role comes from the configured email and
// domain mappings; unmapped addresses get the default role. Returns the new
// user plus an email-verification token for the caller to deliver.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, string, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: valid email is required", ErrBadRequest)
	}
	if !ValidatePasswordStrength(in.Password) {
		return nil, "", fmt.Errorf("%w: password does not meet security requirements", ErrBadRequest)
	}
	if _, err := s.store.Users().FindByEmailOrUsername(ctx, email); err == nil {
		return nil, "", fmt.Errorf("%w: email already registered", ErrBadRequest)
	}
	if username := strings.TrimSpace(in.Username); username != "" {
		if _, err := s.store.Users().FindByEmailOrUsername(ctx, username); err == nil {
			return nil, "", fmt.Errorf("%w: username already taken", ErrBadRequest)
		}
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}
	role, ok := ParseRole(s.roles.RoleFor(email))
	if !ok {
		role = RoleStudent
	}
	user := &User{
		Email:        email,
		Username:     strings.TrimSpace(in.Username),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, "", err
	}
	s.appendAudit(ctx, user.ID, "register", fmt.Sprintf("registered with role %s", role))

	verification, err := s.tokens.IssueEmailVerification(user.Email)
	if err != nil {
		return nil, "", err
	}
	return user, verification, nil
}

// SetUserRole changes the target account's role. The actor must be able to
// manage both the target's current role and the new one via the configured
// hierarchy.
func (s *Service) SetUserRole(ctx context.Context, actor Identity, targetUserID string, role Role) (*User, error) {
	if actor.User == nil || !actor.Role().IsAdminTier() {
		return nil, fmt.Errorf("%w: role changes require an admin role", ErrForbidden)
	}
	target, err := s.store.Users().FindByID(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	if !s.roles.CanManageRole(actor.Role().String(), target.Role.String()) {
		return nil, fmt.Errorf("%w: role %s cannot manage role %s", ErrForbidden, actor.Role(), target.Role)
	}
	if !s.roles.CanManageRole(actor.Role().String(), role.String()) {
		return nil, fmt.Errorf("%w: role %s cannot assign role %s", ErrForbidden, actor.Role(), role)
	}
	if err := s.store.Users().UpdateRole(ctx, target.ID, role); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, target.ID, "role_change",
		fmt.Sprintf("role changed from %s to %s by %s", target.Role, role, actor.User.ID))
	target.Role = role
	return target, nil
}

// Authenticate checks credentials and returns the user. Unknown users, bad
// passwords and inactive accounts all collapse into ErrUnauthorized so the
// response never reveals which check failed.
func (s *Service) Authenticate(ctx context.Context, emailOrUsername, password string) (*User, error) {
	emailOrUsername = strings.TrimSpace(emailOrUsername)
	if emailOrUsername == "" || password == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.Users().FindByEmailOrUsername(ctx, emailOrUsername)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// Login authenticates credentials, issues an access/refresh token pair and
// records an active session with the access-token TTL.
func (s *Service) Login(ctx context.Context, emailOrUsername, password string, client ClientInfo) (TokenPair, *User, error) {
	user, err := s.Authenticate(ctx, emailOrUsername, password)
	if err != nil {
		return TokenPair{}, nil, err
	}

	access, err := s.tokens.IssueAccess(user.ID, user.Role, user.Role)
	if err != nil {
		return TokenPair{}, nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}

	now := s.now().UTC()
	session := &Session{
		UserID:       user.ID,
		SessionToken: access,
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
		IsActive:     true,
		ExpiresAt:    now.Add(s.tokens.AccessTTL()),
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return TokenPair{}, nil, err
	}
	_ = s.store.Users().TouchLastLogin(ctx, user.ID)

	s.appendAudit(ctx, user.ID, "login", fmt.Sprintf("logged in from %s", orUnknown(client.IPAddress)))

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, user, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. The
// refresh token itself is left untouched.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	claims, err := s.tokens.Verify(refreshToken, PurposeRefresh)
	if err != nil {
		return TokenPair{}, nil, err
	}
	user, err := s.store.Users().FindByID(ctx, claims.Subject)
	if err != nil || !user.IsActive {
		return TokenPair{}, nil, ErrUnauthorized
	}
	access, err := s.tokens.IssueAccess(user.ID, user.Role, user.Role)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, user, nil
}

// Logout revokes every active non-impersonation session owned by the user
// in one statement. Access tokens stay valid until natural expiry.
func (s *Service) Logout(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.Sessions().RevokeAllForUser(ctx, userID, false)
	if err != nil {
		return 0, err
	}
	obs.ObserveSessionsRevoked("logout", n)
	s.appendAudit(ctx, userID, "logout", fmt.Sprintf("revoked %d session(s)", n))
	return n, nil
}

// ChangePassword verifies the current password, applies the policy to the
// new one, and revokes every session so all devices re-authenticate.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, currentPassword); err != nil {
		return fmt.Errorf("%w: current password is incorrect", ErrBadRequest)
	}
	if !ValidatePasswordStrength(newPassword) {
		return fmt.Errorf("%w: password does not meet security requirements", ErrBadRequest)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Users().UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	n, err := s.store.Sessions().RevokeAllForUser(ctx, userID, true)
	if err != nil {
		return err
	}
	obs.ObserveSessionsRevoked("password_change", n)
	s.appendAudit(ctx, userID, "password_change", "password changed, all sessions revoked")
	return nil
}

// RequestPasswordReset issues a reset token for the email. The caller must
// respond identically whether or not the account exists; ErrNotFound here
// only tells the caller to skip the email delivery.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.store.Users().FindByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return "", ErrNotFound
	}
	return s.tokens.IssuePasswordReset(user.Email)
}

// ResetPassword completes a password reset from a reset token and revokes
// every session for the account.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	email, err := s.tokens.VerifyPasswordReset(resetToken)
	if err != nil {
		return err
	}
	if !ValidatePasswordStrength(newPassword) {
		return fmt.Errorf("%w: password does not meet security requirements", ErrBadRequest)
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Users().UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	n, err := s.store.Sessions().RevokeAllForUser(ctx, user.ID, true)
	if err != nil {
		return err
	}
	obs.ObserveSessionsRevoked("password_reset", n)
	s.appendAudit(ctx, user.ID, "password_reset", "password reset, all sessions revoked")
	return nil
}

// VerifyEmail marks the account behind an email-verification token verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	email, err := s.tokens.VerifyEmailVerification(token)
	if err != nil {
		return err
	}
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return nil
	}
	return s.store.Users().SetVerified(ctx, user.ID, true)
}

// CurrentIdentity resolves the caller from a bearer token. Opaque
// impersonation tokens are looked up in the session table; everything else
// is verified as an access JWT. The single entry point for all modules.
func (s *Service) CurrentIdentity(ctx context.Context, token string) (Identity, error) {
	if strings.HasPrefix(token, impersonationTokenPrefix) {
		return s.impersonationIdentity(ctx, token)
	}

	claims, err := s.tokens.Verify(token, PurposeAccess)
	if err != nil {
		obs.ObserveTokenVerification(string(PurposeAccess), "failure")
		return Identity{}, err
	}
	obs.ObserveTokenVerification(string(PurposeAccess), "success")

	user, err := s.store.Users().FindByID(ctx, claims.Subject)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	if !user.IsActive {
		return Identity{}, ErrUnauthorized
	}
	return Identity{User: user}, nil
}

// OptionalIdentity resolves the caller but downgrades every verification
// failure to an anonymous identity. Never use it for privileged operations.
func (s *Service) OptionalIdentity(ctx context.Context, token string) (Identity, bool) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, false
	}
	identity, err := s.CurrentIdentity(ctx, token)
	if err != nil {
		return Identity{}, false
	}
	return identity, true
}

func (s *Service) impersonationIdentity(ctx context.Context, token string) (Identity, error) {
	session, err := s.store.Sessions().FindByToken(ctx, token)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	if !session.IsActive || !session.IsImpersonation || session.Expired(s.now()) {
		return Identity{}, ErrUnauthorized
	}
	user, err := s.store.Users().FindByID(ctx, session.UserID)
	if err != nil || !user.IsActive {
		return Identity{}, ErrUnauthorized
	}
	_ = s.store.Sessions().TouchActivity(ctx, session.ID)
	return Identity{User: user, ImpersonatedBy: session.ImpersonatedBy}, nil
}

// StartImpersonation creates a delegated session acting as the target user.
// Only admin-tier callers may impersonate; targeting another admin-tier
// account additionally requires super_admin via the configured hierarchy.
func (s *Service) StartImpersonation(ctx context.Context, admin Identity, targetUserID string) (*Session, string, error) {
	if admin.User == nil || !admin.Role().IsAdminTier() {
		return nil, "", fmt.Errorf("%w: impersonation requires an admin role", ErrForbidden)
	}
	if admin.User.ID == targetUserID {
		return nil, "", fmt.Errorf("%w: cannot impersonate yourself", ErrBadRequest)
	}
	target, err := s.store.Users().FindByID(ctx, targetUserID)
	if err != nil {
		return nil, "", err
	}
	if target.Role.IsAdminTier() && admin.Role() != RoleSuperAdmin {
		return nil, "", fmt.Errorf("%w: only super_admin may impersonate admin accounts", ErrForbidden)
	}
	if !s.roles.CanManageRole(admin.Role().String(), target.Role.String()) {
		return nil, "", fmt.Errorf("%w: role %s cannot manage role %s", ErrForbidden, admin.Role(), target.Role)
	}

	token, err := newImpersonationToken()
	if err != nil {
		return nil, "", err
	}
	now := s.now().UTC()
	session := &Session{
		UserID:          target.ID,
		SessionToken:    token,
		ImpersonatedBy:  admin.User.ID,
		IsImpersonation: true,
		IsActive:        true,
		ExpiresAt:       now.Add(s.impersonationTTL),
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, "", err
	}
	obs.ObserveImpersonationStart()

	// Both audit rows are part of the contract. If either append fails the
	// delegated session is revoked and the start fails.
	err = s.recordAudit(ctx, admin.User.ID, "impersonation_start", fmt.Sprintf("impersonated user %s", target.ID))
	if err == nil {
		err = s.recordAudit(ctx, target.ID, "impersonation_start", fmt.Sprintf("was impersonated by admin %s", admin.User.ID))
	}
	if err != nil {
		_ = s.store.Sessions().Revoke(ctx, session.ID)
		return nil, "", fmt.Errorf("audit append: %w", err)
	}

	return session, token, nil
}

// StopImpersonation ends the caller's delegated session and returns the
// original admin identity so the caller can re-establish a normal session.
func (s *Service) StopImpersonation(ctx context.Context, current Identity) (Identity, error) {
	if current.User == nil {
		return Identity{}, ErrUnauthorized
	}
	if current.ImpersonatedBy == "" {
		return Identity{}, fmt.Errorf("%w: not impersonating", ErrBadRequest)
	}
	original, err := s.store.Users().FindByID(ctx, current.ImpersonatedBy)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: original user missing", ErrNotFound)
	}

	session, err := s.store.Sessions().FindActiveImpersonation(ctx, current.User.ID, current.ImpersonatedBy)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: no active impersonation session", ErrNotFound)
	}
	if err := s.store.Sessions().Revoke(ctx, session.ID); err != nil {
		return Identity{}, err
	}
	obs.ObserveSessionsRevoked("impersonation_stop", 1)

	s.appendAudit(ctx, original.ID, "impersonation_stop", fmt.Sprintf("stopped impersonating user %s", current.User.ID))

	return Identity{User: original}, nil
}

// UserByID loads a user by identifier.
func (s *Service) UserByID(ctx context.Context, userID string) (*User, error) {
	return s.store.Users().FindByID(ctx, userID)
}

// ActiveSessions lists the user's active, unexpired sessions.
func (s *Service) ActiveSessions(ctx context.Context, userID string) ([]*Session, error) {
	return s.store.Sessions().ListActive(ctx, userID)
}

// CleanupExpiredSessions deactivates sessions past expiry. Hygiene only:
// expired sessions are already unusable.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.store.Sessions().DeactivateExpired(ctx)
	if err != nil {
		return 0, err
	}
	obs.ObserveSessionsRevoked("expired", n)
	return n, nil
}

// DeactivateUser disables the account and revokes all of its sessions.
func (s *Service) DeactivateUser(ctx context.Context, userID string) error {
	if err := s.store.Users().SetActive(ctx, userID, false); err != nil {
		return err
	}
	n, err := s.store.Sessions().RevokeAllForUser(ctx, userID, true)
	if err != nil {
		return err
	}
	obs.ObserveSessionsRevoked("deactivated", n)
	s.appendAudit(ctx, userID, "account_deactivated", "account deactivated, all sessions revoked")
	return nil
}

// ActivateUser re-enables a disabled account.
func (s *Service) ActivateUser(ctx context.Context, userID string) error {
	return s.store.Users().SetActive(ctx, userID, true)
}

// RequireRole fails with ErrForbidden unless the identity holds the role.
func (s *Service) RequireRole(identity Identity, role Role) error {
	if identity.Role() != role {
		return fmt.Errorf("%w: requires role %s", ErrForbidden, role)
	}
	return nil
}

// RequirePermission fails with ErrForbidden unless the identity's role
// grants the permission.
func (s *Service) RequirePermission(identity Identity, perm Permission) error {
	return RequirePermission(identity.Role(), perm)
}

// RequireModule fails with ErrForbidden unless the identity's role may
// access the feature area.
func (s *Service) RequireModule(identity Identity, module string) error {
	if !s.roles.CanAccessModule(identity.Role().String(), module) {
		return fmt.Errorf("%w: module %s", ErrForbidden, module)
	}
	return nil
}

// CanManageRole reports whether the identity may manage the target role.
func (s *Service) CanManageRole(identity Identity, target Role) bool {
	return s.roles.CanManageRole(identity.Role().String(), target.String())
}

// AccessibleResourceIDs computes the identity's student-record scope.
func (s *Service) AccessibleResourceIDs(identity Identity, relatedIDs []string) ResourceScope {
	var subject string
	if identity.User != nil {
		subject = identity.User.ID
	}
	return AccessibleResourceIDs(identity.Role(), subject, relatedIDs)
}

func (s *Service) recordAudit(ctx context.Context, userID, action, details string) error {
	return s.store.Audit().Append(ctx, &AuditEntry{
		UserID:    userID,
		Action:    action,
		Details:   details,
		Timestamp: s.now().UTC(),
	})
}

func (s *Service) appendAudit(ctx context.Context, userID, action, details string) {
	if err := s.recordAudit(ctx, userID, action, details); err != nil {
		obs.LogRequest(map[string]any{
			"level":  "error",
			"msg":    "audit append failed",
			"action": action,
			"error":  err.Error(),
		})
	}
}

func newImpersonationToken() (string, error) {
	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return impersonationTokenPrefix + uuid.NewString() + "." + base64.RawURLEncoding.EncodeToString(secret), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
