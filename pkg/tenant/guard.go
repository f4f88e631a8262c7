package tenant

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cornerstone-erp/keystone/pkg/authz"
	"github.com/cornerstone-erp/keystone/pkg/contextkeys"
	"github.com/cornerstone-erp/keystone/pkg/httputil"
)

// SessionCookie is the cookie name checked when no Authorization header is
// present.
const SessionCookie = "keystone_session"

// TenantHeader optionally names the tenant a request addresses. When set, it
// must match the session's tenant.
const TenantHeader = "X-Tenant-ID"

// Context is the authenticated principal attached to each request after the
// guard admits it.
type Context struct {
	TenantID string
	UserID   string
	RoleID   string
	RoleName string
	IsAdmin  bool
}

// FromRequest extracts the tenant context set by the guard, or nil.
func FromRequest(r *http.Request) *Context {
	tc, _ := r.Context().Value(contextkeys.TenantKey).(*Context)
	return tc
}

// Guard authenticates requests via session token and enforces the tenant
// boundary: a session issued for one tenant can never act on another.
type Guard struct {
	sessions *SessionStore
	store    *authz.Store
	log      *logrus.Entry
}

// NewGuard creates a tenant guard.
func NewGuard(sessions *SessionStore, store *authz.Store, log *logrus.Logger) *Guard {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Guard{
		sessions: sessions,
		store:    store,
		log:      log.WithField("component", "guard"),
	}
}

// Handler wraps an HTTP handler with session authentication and the tenant
// check. Missing or invalid credentials yield 401; a valid session used
// against the wrong tenant, an inactive user, or a user moved to another
// tenant yield 403.
func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteUnauthorized(w, "missing session token")
			return
		}

		session, err := g.sessions.Lookup(r.Context(), token)
		if err != nil {
			if authz.IsUnauthorized(err) {
				httputil.WriteUnauthorized(w, "invalid or expired session")
				return
			}
			g.log.WithError(err).Error("session lookup failed")
			httputil.WriteInternalError(w, err)
			return
		}

		profile, err := g.store.GetUserProfile(r.Context(), session.UserID)
		if err != nil {
			if authz.IsNotFound(err) {
				httputil.WriteUnauthorized(w, "invalid or expired session")
				return
			}
			g.log.WithError(err).Error("profile load failed")
			httputil.WriteInternalError(w, err)
			return
		}
		if !profile.IsActive || profile.TenantID != session.TenantID {
			httputil.WriteForbidden(w, "access denied for this tenant")
			return
		}
		if want := r.Header.Get(TenantHeader); want != "" && want != session.TenantID {
			g.log.WithFields(logrus.Fields{
				"session_tenant":   session.TenantID,
				"requested_tenant": want,
				"user_id":          session.UserID,
			}).Warn("cross-tenant request rejected")
			httputil.WriteForbidden(w, "access denied for this tenant")
			return
		}

		tc := &Context{
			TenantID: session.TenantID,
			UserID:   profile.ID,
			RoleID:   profile.RoleID,
			RoleName: profile.RoleName,
			IsAdmin:  profile.IsAdmin(),
		}
		ctx := contextkeys.WithTenant(r.Context(), tc)
		ctx = contextkeys.WithUserID(ctx, profile.ID)
		ctx = contextkeys.WithTenantID(ctx, session.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken pulls the session token from the Authorization header, then
// the session cookie.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}
