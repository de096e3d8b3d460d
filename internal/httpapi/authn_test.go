package httpapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"campusgate.org/internal/auth"
	"campusgate.org/internal/roleconfig"
)

func newTestAPI(t *testing.T) (*API, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret", "campusgate-test")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	roles := roleconfig.Load(filepath.Join(t.TempDir(), "missing.json"))
	engine, err := auth.NewService(auth.NewPGStore(db), tokens, roles)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(ReadyProbe{}, "test", engine), mock
}

func userRows(id, email, hash, role string, active bool) *sqlmock.Rows {
	cols := []string{
		"id", "email", "username", "password_hash", "first_name", "last_name",
		"role", "is_active", "is_verified", "last_login", "created_at", "updated_at",
	}
	now := time.Now().UTC()
	return sqlmock.NewRows(cols).
		AddRow(id, email, "", hash, "Test", "User", role, active, true, now, now, now)
}

func TestExtractBearerToken(t *testing.T) {
	if _, err := extractBearerToken(""); err == nil {
		t.Fatal("empty header must fail")
	}
	if _, err := extractBearerToken("Basic abc"); err == nil {
		t.Fatal("wrong scheme must fail")
	}
	if _, err := extractBearerToken("Bearer "); err == nil {
		t.Fatal("empty token must fail")
	}
	token, err := extractBearerToken("bearer my-token")
	if err != nil || token != "my-token" {
		t.Fatalf("case-insensitive scheme failed: %q, %v", token, err)
	}
}

func TestWithAuthAllowsPublicPaths(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz should be public, got %d", rr.Code)
	}
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthRejectsGarbageToken(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthResolvesAccessToken(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	token, err := api.engine.Tokens().IssueAccess("u1", auth.RoleStudent, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	mock.ExpectQuery("select .* from users where id=\\$1").
		WithArgs("u1").
		WillReturnRows(userRows("u1", "student@example.com", "x", "student", true))

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestWithAuthRejectsRefreshTokenAsAccess(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	refresh, err := api.engine.Tokens().IssueRefresh("u1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token must not authenticate requests, got %d", rr.Code)
	}
}
