package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"campusgate.org/internal/auth"
	"campusgate.org/internal/obs"
	"campusgate.org/internal/roleconfig"
)

// ReadyProbe checks readiness (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the authorization engine.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	engine *auth.Service
	roles  *roleconfig.Service
}

func New(rp ReadyProbe, version string, engine *auth.Service) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		engine:     engine,
		roles:      engine.RoleConfig(),
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth surface
	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), 10, 5))
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/sessions", a.handleSessions)
	a.mux.HandleFunc("/v1/auth/change-password", a.handleChangePassword)
	a.mux.Handle("/v1/auth/forgot-password", RateLimit(http.HandlerFunc(a.handleForgotPassword), 5, 1))
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/verify-email", a.handleVerifyEmail)
	a.mux.Handle("/v1/auth/register", RateLimit(http.HandlerFunc(a.handleRegister), 5, 2))

	// admin surface
	a.mux.HandleFunc("/v1/admin/impersonate", a.handleImpersonate)
	a.mux.HandleFunc("/v1/admin/impersonate/stop", a.handleImpersonateStop)
	a.mux.HandleFunc("/v1/admin/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/admin/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/admin/modules", a.handleModules)
	a.mux.HandleFunc("/v1/admin/modules/", a.handleModuleResource)
	a.mux.HandleFunc("/v1/admin/hierarchy", a.handleHierarchy)
	a.mux.HandleFunc("/v1/admin/email-mapping", a.handleEmailMapping)
	a.mux.HandleFunc("/v1/admin/domain-mapping", a.handleDomainMapping)
	a.mux.HandleFunc("/v1/admin/config", a.handleConfigSnapshot)
	a.mux.HandleFunc("/v1/admin/check-access", a.handleCheckAccess)
	a.mux.HandleFunc("/v1/admin/users/", a.handleUserResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "campusgate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "campusgate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
