package tiles

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/cornerstone-erp/keystone/pkg/authz"
	"github.com/cornerstone-erp/keystone/pkg/contextkeys"
	"github.com/cornerstone-erp/keystone/pkg/httputil"
)

// Handlers serves the launchpad tile routes. Routes assume the tenant guard
// has already admitted the request.
type Handlers struct {
	tiles       *Service
	permissions *authz.PermissionService
	log         *logrus.Entry
}

// NewHandlers creates the tile handler set.
func NewHandlers(tiles *Service, permissions *authz.PermissionService, log *logrus.Logger) *Handlers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handlers{
		tiles:       tiles,
		permissions: permissions,
		log:         log.WithField("component", "tiles-handlers"),
	}
}

// RegisterRoutes mounts the tile routes.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tiles", h.GetTiles).Methods(http.MethodGet)
}

// GetTiles returns the tiles the caller's authorization set grants.
func (h *Handlers) GetTiles(w http.ResponseWriter, r *http.Request) {
	userID := contextkeys.GetUserID(r.Context())
	tenantID := contextkeys.GetTenantID(r.Context())

	set, err := h.permissions.GetUserPermissions(r.Context(), tenantID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	authorized, err := h.tiles.AuthorizedTiles(r.Context(), set)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, authorized)
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case authz.IsNotFound(err):
		httputil.WriteNotFound(w, "not found")
	case authz.IsForbidden(err):
		httputil.WriteForbidden(w, "forbidden")
	default:
		h.log.WithError(err).Error("request failed")
		httputil.WriteInternalError(w, err)
	}
}
