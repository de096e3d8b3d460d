package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestTokens(t *testing.T, opts ...TokenOption) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret", "campusgate-test", opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func TestTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService("  ", "issuer"); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestIssueAndVerifyAccess(t *testing.T) {
	ts := newTestTokens(t)

	token, err := ts.IssueAccess("user-1", RoleTeacher, RoleTeacher)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	claims, err := ts.Verify(token, PurposeAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Role != "teacher" || claims.CurrentRole != "teacher" {
		t.Fatalf("role claims not preserved: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
}

func TestVerifyRejectsWrongPurpose(t *testing.T) {
	ts := newTestTokens(t)

	refresh, err := ts.IssueRefresh("user-1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := ts.Verify(refresh, PurposeAccess); !errors.Is(err, ErrTokenPurposeMismatch) {
		t.Fatalf("expected ErrTokenPurposeMismatch, got %v", err)
	}

	reset, err := ts.IssuePasswordReset("user@example.com")
	if err != nil {
		t.Fatalf("IssuePasswordReset: %v", err)
	}
	if _, err := ts.Verify(reset, PurposeAccess); !errors.Is(err, ErrTokenPurposeMismatch) {
		t.Fatalf("reset token must not verify as access, got %v", err)
	}
	if _, err := ts.Verify(reset, PurposeEmailVerification); !errors.Is(err, ErrTokenPurposeMismatch) {
		t.Fatalf("reset token must not verify as email verification, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	current := time.Now().UTC()
	ts := newTestTokens(t, WithTokenClock(func() time.Time { return current }))

	token, err := ts.IssueAccess("user-1", RoleStudent, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	current = current.Add(31 * time.Minute)
	if _, err := ts.Verify(token, PurposeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	ts := newTestTokens(t)
	other := newTestTokens(t)
	other.secret = []byte("different-secret")

	token, err := other.IssueAccess("user-1", RoleAdmin, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := ts.Verify(token, PurposeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := ts.Verify("not-a-token", PurposeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}

func TestCurrentRoleDefaultsToRole(t *testing.T) {
	ts := newTestTokens(t)

	token, err := ts.IssueAccess("user-1", RoleParent, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	claims, err := ts.Verify(token, PurposeAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.CurrentRole != "parent" {
		t.Fatalf("expected current_role to default to role, got %q", claims.CurrentRole)
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	ts := newTestTokens(t)

	token, err := ts.IssuePasswordReset("user@example.com")
	if err != nil {
		t.Fatalf("IssuePasswordReset: %v", err)
	}
	email, err := ts.VerifyPasswordReset(token)
	if err != nil {
		t.Fatalf("VerifyPasswordReset: %v", err)
	}
	if email != "user@example.com" {
		t.Fatalf("unexpected email: %s", email)
	}
}

func TestEmailVerificationRoundTrip(t *testing.T) {
	ts := newTestTokens(t)

	token, err := ts.IssueEmailVerification("new@example.com")
	if err != nil {
		t.Fatalf("IssueEmailVerification: %v", err)
	}
	email, err := ts.VerifyEmailVerification(token)
	if err != nil {
		t.Fatalf("VerifyEmailVerification: %v", err)
	}
	if email != "new@example.com" {
		t.Fatalf("unexpected email: %s", email)
	}
}
