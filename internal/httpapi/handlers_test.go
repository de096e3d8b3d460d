package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"campusgate.org/internal/auth"
)

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t)
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["service"] != "campusgate-api" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestLoginEndToEnd(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	hash, err := auth.HashPassword("Str0ng!pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	mock.ExpectQuery("select .* from users where email=\\$1 or username=\\$1").
		WithArgs("user@example.com").
		WillReturnRows(userRows("u1", "user@example.com", hash, "student", true))
	mock.ExpectExec("insert into sessions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("update users set last_login").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))

	body := strings.NewReader(`{"email":"user@example.com","password":"Str0ng!pass"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp tokenPairResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if resp.TokenType != "bearer" {
		t.Fatalf("unexpected token type: %s", resp.TokenType)
	}
	if resp.User.ID != "u1" || resp.User.Role != "student" {
		t.Fatalf("unexpected user: %+v", resp.User)
	}
}

func TestLoginBadCredentialsReturns401(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	mock.ExpectQuery("select .* from users").
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	body := strings.NewReader(`{"email":"user@example.com","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestLoginRejectsUnknownFields(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	body := strings.NewReader(`{"email":"a@b.c","password":"x","extra":true}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestForgotPasswordResponseIsUniform(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	// known account
	hash, _ := auth.HashPassword("Str0ng!pass")
	mock.ExpectQuery("select .* from users where email=\\$1").
		WithArgs("known@example.com").
		WillReturnRows(userRows("u1", "known@example.com", hash, "student", true))
	// unknown account
	mock.ExpectQuery("select .* from users where email=\\$1").
		WithArgs("unknown@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	var bodies []string
	for _, email := range []string{"known@example.com", "unknown@example.com"} {
		body := strings.NewReader(`{"email":"` + email + `"}`)
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/forgot-password", body)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", email, rr.Code)
		}
		var resp map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if tok, ok := resp["token"]; ok {
			t.Fatalf("reset token must never appear in the response: %v", tok)
		}
		bodies = append(bodies, resp["message"].(string))
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("responses differ: %q vs %q", bodies[0], bodies[1])
	}
}

func TestImpersonateRequiresAdmin(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	token, err := api.engine.Tokens().IssueAccess("s1", auth.RoleStudent, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	mock.ExpectQuery("select .* from users where id=\\$1").
		WithArgs("s1").
		WillReturnRows(userRows("s1", "student@example.com", "x", "student", true))

	body := strings.NewReader(`{"user_id":"s2"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/impersonate", body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestImpersonateStopWithoutDelegation(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	token, err := api.engine.Tokens().IssueAccess("a1", auth.RoleAdmin, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	mock.ExpectQuery("select .* from users where id=\\$1").
		WithArgs("a1").
		WillReturnRows(userRows("a1", "admin@example.com", "x", "admin", true))

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/impersonate/stop", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-impersonated caller, got %d", rr.Code)
	}
}

func TestChangePasswordBlockedDuringImpersonation(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	now := time.Now().UTC()
	sessionCols := []string{
		"id", "user_id", "session_token", "ip_address", "user_agent", "impersonated_by",
		"is_impersonation", "is_active", "created_at", "expires_at", "last_activity",
	}
	mock.ExpectQuery("select .* from sessions where session_token=\\$1").
		WithArgs("imp_tok").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("sess-1", "s1", "imp_tok", nil, nil, "a1", true, true, now, now.Add(10*time.Minute), now))
	mock.ExpectQuery("select .* from users where id=\\$1").
		WithArgs("s1").
		WillReturnRows(userRows("s1", "student@example.com", "x", "student", true))
	mock.ExpectExec("update sessions set last_activity").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := strings.NewReader(`{"current_password":"a","new_password":"Str0ng!pass"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/change-password", body)
	req.Header.Set("Authorization", "Bearer imp_tok")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdminConfigEndpointsRequireAdmin(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	token, err := api.engine.Tokens().IssueAccess("s1", auth.RoleStudent, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	for _, path := range []string{"/v1/admin/roles", "/v1/admin/config", "/v1/admin/hierarchy"} {
		mock.ExpectQuery("select .* from users where id=\\$1").
			WithArgs("s1").
			WillReturnRows(userRows("s1", "student@example.com", "x", "student", true))
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, rr.Code)
		}
	}
}

func TestRoleResourceGet(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	token, err := api.engine.Tokens().IssueAccess("a1", auth.RoleAdmin, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	mock.ExpectQuery("select .* from users where id=\\$1").
		WithArgs("a1").
		WillReturnRows(userRows("a1", "admin@example.com", "x", "admin", true))

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/roles/teacher", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var info struct {
		Name            string   `json:"name"`
		ManageableRoles []string `json:"manageable_roles"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Name != "Teacher" {
		t.Fatalf("unexpected role info: %+v", info)
	}
}

func TestCheckAccessEndpoint(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	token, err := api.engine.Tokens().IssueAccess("a1", auth.RoleAdmin, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	mock.ExpectQuery("select .* from users where id=\\$1").
		WithArgs("a1").
		WillReturnRows(userRows("a1", "admin@example.com", "x", "admin", true))

	body := strings.NewReader(`{"role":"student","module":"fees","target_role":"guest","email":"x@nowhere.org"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/check-access", body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["can_access_module"] != false {
		t.Fatalf("student must not access fees: %v", resp)
	}
	if resp["resolved_role"] != "student" {
		t.Fatalf("unexpected resolved role: %v", resp)
	}
	if resp["can_manage_role"] != false {
		t.Fatalf("student manages nothing: %v", resp)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/login", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("expected Allow header, got %q", rr.Header().Get("Allow"))
	}
}

func TestRegisterEndpoint(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	mock.ExpectQuery("select .* from users where email=\\$1 or username=\\$1").
		WithArgs("newkid@example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "newkid@example.com", "", sqlmock.AnyArg(),
			"", "", "student", true, false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into audit_log").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "register", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	body := strings.NewReader(`{"email":"newkid@example.com","password":"Str0ng!pass"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", body)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		User struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.Role != "student" {
		t.Fatalf("role = %q, want student", resp.User.Role)
	}
	if strings.Contains(rr.Body.String(), "verification_token") {
		t.Fatal("verification token must not appear in the response")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRoleChangeRequiresAdmin(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	token, err := api.engine.Tokens().IssueAccess("s1", auth.RoleStudent, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	mock.ExpectQuery("select .* from users where id=\\$1").
		WithArgs("s1").
		WillReturnRows(userRows("s1", "student@example.com", "x", "student", true))

	body := strings.NewReader(`{"role":"teacher"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/users/u1/role", body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUserRoleChangeEndpoint(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	token, err := api.engine.Tokens().IssueAccess("a1", auth.RoleAdmin, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	mock.ExpectQuery("select .* from users where id=\\$1").
		WithArgs("a1").
		WillReturnRows(userRows("a1", "admin@example.com", "x", "admin", true))
	mock.ExpectQuery("select .* from users where id=\\$1").
		WithArgs("u1").
		WillReturnRows(userRows("u1", "kid@example.com", "x", "student", true))
	mock.ExpectExec("update users set role=\\$2").
		WithArgs("u1", "teacher").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into audit_log").
		WithArgs(sqlmock.AnyArg(), "u1", "role_change", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	body := strings.NewReader(`{"role":"teacher"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/users/u1/role", body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		User struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.Role != "teacher" {
		t.Fatalf("role = %q, want teacher", resp.User.Role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckAccessNormalizesRoleCase(t *testing.T) {
	api, mock := newTestAPI(t)
	handler := api.Handler()

	token, err := api.engine.Tokens().IssueAccess("a1", auth.RoleAdmin, "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	mock.ExpectQuery("select .* from users where id=\\$1").
		WithArgs("a1").
		WillReturnRows(userRows("a1", "admin@example.com", "x", "admin", true))

	body := strings.NewReader(`{"role":"Teacher","module":"library","permission":"assignment:grade","target_role":"student"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/check-access", body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["can_access_module"] != true || resp["has_permission"] != true || resp["can_manage_role"] != true {
		t.Fatalf("mixed-case role must answer like its lowercase form: %v", resp)
	}
}
