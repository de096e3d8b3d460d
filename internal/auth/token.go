package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose declares the single operation class a token may authenticate.
// Verification always names the purpose it expects, so a token issued for
// one purpose can never be replayed for another.
type Purpose string

const (
	PurposeAccess            Purpose = "access"
	PurposeRefresh           Purpose = "refresh"
	PurposePasswordReset     Purpose = "password_reset"
	PurposeEmailVerification Purpose = "email_verification"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	passwordResetTTL  = 24 * time.Hour
	emailVerifyTTL    = 48 * time.Hour
)

// Claims is the signed token payload. Role and CurrentRole are populated on
// access tokens only; CurrentRole differs from Role during a role switch.
type Claims struct {
	Purpose     Purpose `json:"type"`
	Role        string  `json:"role,omitempty"`
	CurrentRole string  `json:"current_role,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed, typed, expiring tokens with a
// process-wide HS256 secret.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(t *TokenService) {
		if ttl > 0 {
			t.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(t *TokenService) {
		if ttl > 0 {
			t.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(t *TokenService) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokenService constructs a TokenService. The secret must be non-empty.
func NewTokenService(secret, issuer string, opts ...TokenOption) (*TokenService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	t := &TokenService{
		secret:     []byte(secret),
		issuer:     strings.TrimSpace(issuer),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// AccessTTL returns the configured access token lifetime. Sessions created
// at login share this TTL.
func (t *TokenService) AccessTTL() time.Duration { return t.accessTTL }

// Issue serializes and signs a token for the given subject and purpose.
// role and currentRole are embedded on access tokens only; an empty
// currentRole defaults to role.
func (t *TokenService) Issue(subject string, purpose Purpose, ttl time.Duration, role, currentRole Role) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("auth: subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("auth: ttl must be greater than zero")
	}

	now := t.now().UTC()
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if purpose == PurposeAccess {
		claims.Role = role.String()
		if currentRole == "" {
			currentRole = role
		}
		claims.CurrentRole = currentRole.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and purpose of a token and returns its
// claims. Expiry failures map to ErrTokenExpired, purpose mismatches to
// ErrTokenPurposeMismatch and everything else to ErrTokenInvalid.
func (t *TokenService) Verify(token string, expected Purpose) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	if t.issuer != "" && claims.Issuer != t.issuer {
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != expected {
		return nil, fmt.Errorf("%w: issued for %q, verified as %q", ErrTokenPurposeMismatch, claims.Purpose, expected)
	}
	return claims, nil
}

// IssueAccess issues an access token embedding the subject's role claims.
func (t *TokenService) IssueAccess(subject string, role, currentRole Role) (string, error) {
	return t.Issue(subject, PurposeAccess, t.accessTTL, role, currentRole)
}

// IssueRefresh issues a refresh token carrying nothing beyond subject and purpose.
func (t *TokenService) IssueRefresh(subject string) (string, error) {
	return t.Issue(subject, PurposeRefresh, t.refreshTTL, "", "")
}

// IssuePasswordReset issues a 24h password-reset token for an email subject.
// A reset token can never authenticate an API call: Verify pins the purpose.
func (t *TokenService) IssuePasswordReset(email string) (string, error) {
	return t.Issue(email, PurposePasswordReset, passwordResetTTL, "", "")
}

// VerifyPasswordReset verifies a password-reset token and returns the email.
func (t *TokenService) VerifyPasswordReset(token string) (string, error) {
	claims, err := t.Verify(token, PurposePasswordReset)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// IssueEmailVerification issues a 48h email-verification token.
func (t *TokenService) IssueEmailVerification(email string) (string, error) {
	return t.Issue(email, PurposeEmailVerification, emailVerifyTTL, "", "")
}

// VerifyEmailVerification verifies an email-verification token and returns
// the email.
func (t *TokenService) VerifyEmailVerification(token string) (string, error) {
	claims, err := t.Verify(token, PurposeEmailVerification)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
