package tenant

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/cornerstone-erp/keystone/pkg/audit"
	"github.com/cornerstone-erp/keystone/pkg/authz"
	"github.com/cornerstone-erp/keystone/pkg/httputil"
)

// LoginRequest identifies the user to issue a session for. Identity is
// asserted by the upstream identity provider; this service only checks that
// the user and its tenant exist and are active.
type LoginRequest struct {
	UserID string `json:"user_id"`
}

// LoginResponse carries the session token. The token is shown once.
type LoginResponse struct {
	Token    string   `json:"token"`
	Session  *Session `json:"session"`
	RoleName string   `json:"role_name"`
	IsAdmin  bool     `json:"is_admin"`
	TenantID string   `json:"tenant_id"`
}

// Handlers serves login and logout.
type Handlers struct {
	sessions    *SessionStore
	store       *authz.Store
	permissions *authz.PermissionService
	audit       audit.Logger
	log         *logrus.Entry
}

// NewHandlers creates the session handler set. auditLog may be nil.
func NewHandlers(sessions *SessionStore, store *authz.Store, permissions *authz.PermissionService, auditLog audit.Logger, log *logrus.Logger) *Handlers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if auditLog == nil {
		auditLog = audit.NewNopLogger()
	}
	return &Handlers{
		sessions:    sessions,
		store:       store,
		permissions: permissions,
		audit:       auditLog,
		log:         log.WithField("component", "sessions"),
	}
}

// RegisterRoutes mounts the auth routes. These stay outside the guard; login
// is how a session is obtained in the first place.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
}

// Login issues a session for an active user in an active tenant.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	profile, err := h.store.GetUserProfile(r.Context(), req.UserID)
	if err != nil {
		if authz.IsNotFound(err) {
			h.recordLogin(r, req.UserID, "", false, "unknown user")
			httputil.WriteUnauthorized(w, "invalid credentials")
			return
		}
		h.log.WithError(err).Error("profile load failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if !profile.IsActive {
		h.recordLogin(r, req.UserID, profile.TenantID, false, "inactive user")
		httputil.WriteForbidden(w, "account disabled")
		return
	}

	tenant, err := h.store.GetTenantByID(r.Context(), profile.TenantID)
	if err != nil {
		h.log.WithError(err).Error("tenant load failed")
		httputil.WriteInternalError(w, err)
		return
	}
	if !tenant.IsActive {
		h.recordLogin(r, req.UserID, tenant.ID, false, "inactive tenant")
		httputil.WriteForbidden(w, "tenant disabled")
		return
	}

	token, session, err := h.sessions.Create(r.Context(), profile.ID, profile.TenantID)
	if err != nil {
		h.log.WithError(err).Error("session create failed")
		httputil.WriteInternalError(w, err)
		return
	}

	h.recordLogin(r, profile.ID, profile.TenantID, true, "")
	httputil.WriteSuccess(w, LoginResponse{
		Token:    token,
		Session:  session,
		RoleName: profile.RoleName,
		IsAdmin:  profile.IsAdmin(),
		TenantID: profile.TenantID,
	})
}

// Logout revokes the presented session and drops the user's cached
// permission sets.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		httputil.WriteUnauthorized(w, "missing session token")
		return
	}

	session, err := h.sessions.Lookup(r.Context(), token)
	if err != nil {
		if authz.IsUnauthorized(err) {
			httputil.WriteUnauthorized(w, "invalid or expired session")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	if err := h.sessions.Delete(r.Context(), token); err != nil {
		h.log.WithError(err).Error("session delete failed")
		httputil.WriteInternalError(w, err)
		return
	}
	h.permissions.InvalidateUser(r.Context(), session.UserID)

	event := &audit.Event{
		TenantID:     session.TenantID,
		ActorID:      session.UserID,
		Action:       audit.ActionLogout,
		ResourceType: audit.ResourceSession,
		Success:      true,
	}
	if err := h.audit.Record(r.Context(), event); err != nil {
		h.log.WithError(err).Warn("audit record failed")
	}
	httputil.WriteMessage(w, "logged out", nil)
}

func (h *Handlers) recordLogin(r *http.Request, userID, tenantID string, success bool, message string) {
	action := audit.ActionLogin
	if !success {
		action = audit.ActionLoginFailed
	}
	event := &audit.Event{
		TenantID:     tenantID,
		ActorID:      userID,
		Action:       action,
		ResourceType: audit.ResourceSession,
		Success:      success,
		Message:      message,
	}
	if err := h.audit.Record(r.Context(), event); err != nil {
		h.log.WithError(err).Warn("audit record failed")
	}
}
