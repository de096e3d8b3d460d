package httpapi

import (
	"net/http"
	"strings"

	"campusgate.org/internal/audit"
	"campusgate.org/internal/auth"
	"campusgate.org/internal/roleconfig"
)

type impersonateRequest struct {
	UserID string `json:"user_id"`
}

type impersonateResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt string       `json:"expires_at"`
	Target    userResponse `json:"target"`
}

func (a *API) handleImpersonate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	var req impersonateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}

	session, token, err := a.engine.StartImpersonation(r.Context(), identity, req.UserID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	target, err := a.engine.UserByID(r.Context(), session.UserID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "admin.impersonation.start", map[string]any{
		"admin_id":   identity.User.ID,
		"target_id":  session.UserID,
		"session_id": session.ID,
		"expires_at": session.ExpiresAt.UTC().Format(timeFormat),
	})
	writeJSON(w, http.StatusOK, impersonateResponse{
		Token:     token,
		TokenType: "bearer",
		ExpiresAt: session.ExpiresAt.UTC().Format(timeFormat),
		Target:    toUserResponse(target),
	})
}

func (a *API) handleImpersonateStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	original, err := a.engine.StopImpersonation(r.Context(), identity)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "admin.impersonation.stop", map[string]any{
		"admin_id":  original.User.ID,
		"target_id": identity.User.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "impersonation stopped",
		"user":    toUserResponse(original.User),
	})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": a.roles.Roles()})
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/roles/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		info, err := a.roles.RoleInfo(name)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	case http.MethodPut:
		if identity.Role() != auth.RoleSuperAdmin {
			writeError(w, r, http.StatusForbidden, "super_admin role required")
			return
		}
		var patch roleconfig.RolePatch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.roles.UpdateRole(name, patch); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.roleconfig.role_updated", map[string]any{
			"role": name,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "role updated"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": a.roles.Modules()})
}

func (a *API) handleModuleResource(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/modules/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		modules := a.roles.Modules()
		meta, ok := modules[name]
		if !ok {
			writeError(w, r, http.StatusNotFound, "unknown module")
			return
		}
		writeJSON(w, http.StatusOK, meta)
	case http.MethodPut:
		if identity.Role() != auth.RoleSuperAdmin {
			writeError(w, r, http.StatusForbidden, "super_admin role required")
			return
		}
		var patch roleconfig.ModulePatch
		if err := decodeJSON(w, r, &patch); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.roles.UpdateModule(name, patch); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.roleconfig.module_updated", map[string]any{
			"module": name,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "module updated"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hierarchy": a.roles.Hierarchy()})
}

type emailMappingRequest struct {
	Email  string `json:"email"`
	Domain string `json:"domain"`
	Role   string `json:"role"`
}

func (a *API) handleEmailMapping(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		emails, domains := a.roles.EmailMappings()
		writeJSON(w, http.StatusOK, map[string]any{
			"email_role_mapping":  emails,
			"domain_role_mapping": domains,
		})
	case http.MethodPost:
		if identity.Role() != auth.RoleSuperAdmin {
			writeError(w, r, http.StatusForbidden, "super_admin role required")
			return
		}
		var req emailMappingRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if req.Role == "" {
			writeError(w, r, http.StatusBadRequest, "role is required")
			return
		}
		if err := a.roles.AddEmailMapping(req.Email, req.Role); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.roleconfig.email_mapping_added", map[string]any{
			"email": strings.ToLower(strings.TrimSpace(req.Email)),
			"role":  req.Role,
		})
		writeJSON(w, http.StatusCreated, map[string]any{"message": "mapping added"})
	case http.MethodDelete:
		if identity.Role() != auth.RoleSuperAdmin {
			writeError(w, r, http.StatusForbidden, "super_admin role required")
			return
		}
		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			writeError(w, r, http.StatusBadRequest, "email query parameter is required")
			return
		}
		if err := a.roles.RemoveEmailMapping(email); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.roleconfig.email_mapping_removed", map[string]any{
			"email": strings.ToLower(email),
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "mapping removed"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleDomainMapping(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		if identity.Role() != auth.RoleSuperAdmin {
			writeError(w, r, http.StatusForbidden, "super_admin role required")
			return
		}
		var req emailMappingRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if req.Domain == "" || req.Role == "" {
			writeError(w, r, http.StatusBadRequest, "domain and role are required")
			return
		}
		if err := a.roles.AddDomainMapping(req.Domain, req.Role); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.roleconfig.domain_mapping_added", map[string]any{
			"domain": strings.ToLower(strings.TrimSpace(req.Domain)),
			"role":   req.Role,
		})
		writeJSON(w, http.StatusCreated, map[string]any{"message": "mapping added"})
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleConfigSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.roles.Snapshot())
}

type checkAccessRequest struct {
	Role       string `json:"role"`
	Module     string `json:"module"`
	Permission string `json:"permission"`
	TargetRole string `json:"target_role"`
	Email      string `json:"email"`
}

// handleCheckAccess answers policy questions without mutating anything:
// module access, permission grants, role management and email resolution.
func (a *API) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}

	var req checkAccessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]any{}
	if req.Email != "" {
		resp["resolved_role"] = a.roles.RoleFor(req.Email)
		resp["has_mapping"] = a.roles.HasMapping(req.Email)
	}
	if req.Role != "" {
		role, ok := auth.ParseRole(req.Role)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "unknown role")
			return
		}
		if req.Module != "" {
			resp["can_access_module"] = a.roles.CanAccessModule(role.String(), req.Module)
		}
		if req.Permission != "" {
			resp["has_permission"] = auth.HasPermission(role, auth.Permission(req.Permission))
		}
		if req.TargetRole != "" {
			resp["can_manage_role"] = a.roles.CanManageRole(role.String(), req.TargetRole)
		}
	}
	if len(resp) == 0 {
		writeError(w, r, http.StatusBadRequest, "nothing to check")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type userRoleRequest struct {
	Role string `json:"role"`
}

// handleUserResource routes /v1/admin/users/{id}/role.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/users/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "role" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}

	var req userRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}

	user, err := a.engine.SetUserRole(r.Context(), identity, parts[0], role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.user.role_changed", map[string]any{
		"target_user_id": user.ID,
		"role":           role.String(),
		"changed_by":     identity.User.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}
