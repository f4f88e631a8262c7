package authz

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/cornerstone-erp/keystone/pkg/audit"
	"github.com/cornerstone-erp/keystone/pkg/contextkeys"
	"github.com/cornerstone-erp/keystone/pkg/httputil"
)

// BulkAssignRequest grants module or single-object access to a role.
// Role accepts a role name or UUID. CascadeLevel defaults to "module";
// "object" grants only ObjectID. Template defaults to the restrictive
// default field set.
type BulkAssignRequest struct {
	Role         string `json:"role"`
	Module       string `json:"module,omitempty"`
	CascadeLevel string `json:"cascade_level,omitempty"`
	ObjectID     string `json:"object_id,omitempty"`
	Template     string `json:"template,omitempty"`
}

// ClearCascadeRequest decouples a role's inherited assignments in a module.
type ClearCascadeRequest struct {
	Role   string `json:"role"`
	Module string `json:"module"`
}

// ConvertToCustomRequest decouples a single assignment.
type ConvertToCustomRequest struct {
	AssignmentID string `json:"assignment_id"`
}

// UpdateAssignmentRequest replaces an assignment's field values.
type UpdateAssignmentRequest struct {
	AssignmentID string      `json:"assignment_id"`
	FieldValues  FieldValues `json:"field_values"`
}

// RemoveAssignmentRequest deletes a single assignment.
type RemoveAssignmentRequest struct {
	AssignmentID string `json:"assignment_id"`
}

// RemoveModuleRequest tears down a role's inherited assignments in a module.
type RemoveModuleRequest struct {
	Role   string `json:"role"`
	Module string `json:"module"`
}

// CheckPermissionRequest asks whether the caller holds an authorization
// object.
type CheckPermissionRequest struct {
	ObjectName string `json:"object_name"`
}

// ChangeUserRoleRequest moves a user to a different role. Role accepts a
// role name or UUID.
type ChangeUserRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Handlers exposes the authorization engine over HTTP. Routes assume the
// tenant guard has already admitted the request.
type Handlers struct {
	store       *Store
	cascade     *CascadeResolver
	overrides   *OverrideManager
	permissions *PermissionService
	audit       audit.Logger
	log         *logrus.Entry
}

// NewHandlers creates the authorization handler set. auditLog may be nil.
func NewHandlers(store *Store, cascade *CascadeResolver, overrides *OverrideManager, permissions *PermissionService, auditLog audit.Logger, log *logrus.Logger) *Handlers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if auditLog == nil {
		auditLog = audit.NewNopLogger()
	}
	return &Handlers{
		store:       store,
		cascade:     cascade,
		overrides:   overrides,
		permissions: permissions,
		audit:       auditLog,
		log:         log.WithField("component", "handlers"),
	}
}

// RegisterRoutes mounts all authorization routes on the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/authorization-objects", h.ListObjects).Methods(http.MethodGet)
	r.HandleFunc("/authorization-objects/assignments", h.ListRoleAssignments).Methods(http.MethodGet)
	r.HandleFunc("/authorization-objects/bulk-assign", h.BulkAssign).Methods(http.MethodPost)
	r.HandleFunc("/authorization-objects/clear-cascade", h.ClearCascade).Methods(http.MethodPut)
	r.HandleFunc("/authorization-objects/convert-to-custom", h.ConvertToCustom).Methods(http.MethodPut)
	r.HandleFunc("/authorization-objects/update-assignment", h.UpdateAssignment).Methods(http.MethodPut)
	r.HandleFunc("/authorization-objects/remove-assignment", h.RemoveAssignment).Methods(http.MethodDelete)
	r.HandleFunc("/authorization-objects/remove-module", h.RemoveModule).Methods(http.MethodDelete)
	r.HandleFunc("/authorization-objects/available-modules", h.AvailableModules).Methods(http.MethodGet)
	r.HandleFunc("/roles/users", h.ListRoleUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/role", h.ChangeUserRole).Methods(http.MethodPut)
	r.HandleFunc("/permissions", h.GetPermissions).Methods(http.MethodGet)
	r.HandleFunc("/permissions/check", h.CheckPermission).Methods(http.MethodPost)
}

// ListObjects returns the authorization object catalog with fields.
func (h *Handlers) ListObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := h.store.ListObjects(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	for i := range objects {
		fields, err := h.store.GetObjectFields(r.Context(), objects[i].ID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		objects[i].Fields = fields
	}
	httputil.WriteSuccess(w, objects)
}

// ListRoleAssignments returns every assignment a role holds. The role query
// parameter accepts a role name or UUID.
func (h *Handlers) ListRoleAssignments(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		httputil.WriteBadRequest(w, "role query parameter is required")
		return
	}
	roleID, err := h.permissions.ResolveRoleID(r.Context(), role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	assignments, err := h.store.ListAssignments(r.Context(), roleID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

// BulkAssign grants a role access by cascade: a whole module by default, or
// one object when cascade_level is "object".
func (h *Handlers) BulkAssign(w http.ResponseWriter, r *http.Request) {
	var req BulkAssignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" {
		httputil.WriteBadRequest(w, "role is required")
		return
	}

	roleID, err := h.permissions.ResolveRoleID(r.Context(), req.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	template := parseTemplate(req.Template)

	switch req.CascadeLevel {
	case "", "module":
		if req.Module == "" {
			httputil.WriteBadRequest(w, "module is required for module cascade")
			return
		}
		result, err := h.cascade.GrantModuleAccess(r.Context(), roleID, req.Module, template)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.recordAudit(r, audit.ActionGrantModule, audit.ResourceModule, req.Module, true)
		httputil.WriteSuccess(w, result)
	case "object":
		if req.ObjectID == "" {
			httputil.WriteBadRequest(w, "object_id is required for object cascade")
			return
		}
		assignment, err := h.cascade.GrantObjectAccess(r.Context(), roleID, req.ObjectID, template)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.recordAudit(r, audit.ActionGrantObject, audit.ResourceAssignment, assignment.ID, true)
		httputil.WriteSuccess(w, assignment)
	default:
		httputil.WriteBadRequest(w, "cascade_level must be module or object")
	}
}

// ClearCascade decouples every inherited assignment the role holds in the
// module. Rows are preserved as custom assignments.
func (h *Handlers) ClearCascade(w http.ResponseWriter, r *http.Request) {
	var req ClearCascadeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" || req.Module == "" {
		httputil.WriteBadRequest(w, "role and module are required")
		return
	}

	roleID, err := h.permissions.ResolveRoleID(r.Context(), req.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	count, err := h.cascade.ClearCascade(r.Context(), roleID, req.Module)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionClearCascade, audit.ResourceModule, req.Module, true)
	httputil.WriteMessage(w, "cascade cleared", map[string]int{"converted": count})
}

// ConvertToCustom decouples a single assignment from its grant.
func (h *Handlers) ConvertToCustom(w http.ResponseWriter, r *http.Request) {
	var req ConvertToCustomRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.AssignmentID == "" {
		httputil.WriteBadRequest(w, "assignment_id is required")
		return
	}

	assignment, err := h.overrides.ConvertToCustom(r.Context(), req.AssignmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionConvertCustom, audit.ResourceAssignment, assignment.ID, true)
	httputil.WriteSuccess(w, assignment)
}

// UpdateAssignment replaces an assignment's field values.
func (h *Handlers) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	var req UpdateAssignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.AssignmentID == "" {
		httputil.WriteBadRequest(w, "assignment_id is required")
		return
	}
	if req.FieldValues == nil {
		httputil.WriteBadRequest(w, "field_values is required")
		return
	}

	assignment, err := h.overrides.UpdateFieldValues(r.Context(), req.AssignmentID, req.FieldValues)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionUpdateFields, audit.ResourceAssignment, assignment.ID, true)
	httputil.WriteSuccess(w, assignment)
}

// RemoveAssignment deletes one assignment.
func (h *Handlers) RemoveAssignment(w http.ResponseWriter, r *http.Request) {
	var req RemoveAssignmentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.AssignmentID == "" {
		httputil.WriteBadRequest(w, "assignment_id is required")
		return
	}

	if err := h.overrides.RemoveAssignment(r.Context(), req.AssignmentID); err != nil {
		h.writeError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionRemoveGrant, audit.ResourceAssignment, req.AssignmentID, true)
	httputil.WriteMessage(w, "assignment removed", nil)
}

// RemoveModule deletes every inherited assignment the role holds in the
// module, atomically. Custom assignments survive.
func (h *Handlers) RemoveModule(w http.ResponseWriter, r *http.Request) {
	var req RemoveModuleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" || req.Module == "" {
		httputil.WriteBadRequest(w, "role and module are required")
		return
	}

	roleID, err := h.permissions.ResolveRoleID(r.Context(), req.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	count, err := h.cascade.RemoveModuleAssignments(r.Context(), roleID, req.Module)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.recordAudit(r, audit.ActionRemoveModule, audit.ResourceModule, req.Module, true)
	httputil.WriteMessage(w, "module assignments removed", map[string]int{"removed": count})
}

// AvailableModules summarizes full, partial, and absent module access for a
// role.
func (h *Handlers) AvailableModules(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		httputil.WriteBadRequest(w, "role query parameter is required")
		return
	}

	roleID, err := h.permissions.ResolveRoleID(r.Context(), role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summaries, err := h.permissions.GetRoleModules(r.Context(), roleID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, summaries)
}

// ListRoleUsers returns the ids of active users holding a role. The role
// query parameter accepts a role name or UUID.
func (h *Handlers) ListRoleUsers(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		httputil.WriteBadRequest(w, "role query parameter is required")
		return
	}

	roleID, err := h.permissions.ResolveRoleID(r.Context(), role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	userIDs, err := h.store.ListUserIDsByRole(r.Context(), roleID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"role_id":  roleID,
		"user_ids": userIDs,
	})
}

// ChangeUserRole moves a user to another role and drops the user's cached
// sets so the new role takes effect on the next request.
func (h *Handlers) ChangeUserRole(w http.ResponseWriter, r *http.Request) {
	var req ChangeUserRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Role == "" {
		httputil.WriteBadRequest(w, "user_id and role are required")
		return
	}

	roleID, err := h.permissions.ResolveRoleID(r.Context(), req.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.store.UpdateUserRole(r.Context(), req.UserID, roleID); err != nil {
		h.writeError(w, err)
		return
	}
	h.permissions.InvalidateUser(r.Context(), req.UserID)

	h.recordAudit(r, audit.ActionRoleChange, audit.ResourceUser, req.UserID, true)
	httputil.WriteMessage(w, "user role updated", map[string]string{
		"user_id": req.UserID,
		"role_id": roleID,
	})
}

// GetPermissions returns the caller's effective authorization set.
func (h *Handlers) GetPermissions(w http.ResponseWriter, r *http.Request) {
	userID := contextkeys.GetUserID(r.Context())
	tenantID := contextkeys.GetTenantID(r.Context())

	set, err := h.permissions.GetUserPermissions(r.Context(), tenantID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"objects":  set.ObjectNames(),
		"is_admin": set.IsAdmin,
	})
}

// CheckPermission answers a boolean permission question for the caller.
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req CheckPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ObjectName == "" {
		httputil.WriteBadRequest(w, "object_name is required")
		return
	}

	userID := contextkeys.GetUserID(r.Context())
	tenantID := contextkeys.GetTenantID(r.Context())

	allowed, err := h.permissions.CheckPermission(r.Context(), tenantID, userID, req.ObjectName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"allowed": allowed})
}

// parseTemplate maps the request template string to an access template,
// falling back to the restrictive default.
func parseTemplate(template string) AccessTemplate {
	switch template {
	case string(TemplateFullAccess):
		return TemplateFullAccess
	case string(TemplateReadOnly):
		return TemplateReadOnly
	default:
		return TemplateDefault
	}
}

func (h *Handlers) recordAudit(r *http.Request, action audit.Action, resourceType audit.ResourceType, resourceID string, success bool) {
	event := &audit.Event{
		TenantID:     contextkeys.GetTenantID(r.Context()),
		ActorID:      contextkeys.GetUserID(r.Context()),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Success:      success,
	}
	if err := h.audit.Record(r.Context(), event); err != nil {
		h.log.WithError(err).Warn("audit record failed")
	}
}

// writeError maps engine errors onto HTTP status codes. Store errors log in
// full; the client sees detail only in development.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case IsValidation(err):
		httputil.WriteBadRequest(w, err.Error())
	case IsNotFound(err):
		httputil.WriteNotFound(w, "not found")
	case IsUnauthorized(err):
		httputil.WriteUnauthorized(w, "unauthorized")
	case IsForbidden(err):
		httputil.WriteForbidden(w, "forbidden")
	default:
		h.log.WithError(err).Error("request failed")
		httputil.WriteInternalError(w, err)
	}
}
