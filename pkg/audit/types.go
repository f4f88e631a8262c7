// Package audit records who did what to the authorization data. Every
// mutating operation writes an event; reads are not audited.
package audit

import "time"

// Action categorizes an audit event.
type Action string

const (
	ActionLogin         Action = "auth.login"
	ActionLogout        Action = "auth.logout"
	ActionLoginFailed   Action = "auth.login_failed"
	ActionGrantModule   Action = "authz.grant_module"
	ActionGrantObject   Action = "authz.grant_object"
	ActionClearCascade  Action = "authz.clear_cascade"
	ActionRemoveModule  Action = "authz.remove_module"
	ActionConvertCustom Action = "authz.convert_custom"
	ActionUpdateFields  Action = "authz.update_fields"
	ActionRemoveGrant   Action = "authz.remove_grant"
	ActionRoleChange    Action = "admin.role_change"
	ActionTileCreate    Action = "admin.tile_create"
	ActionTileDisable   Action = "admin.tile_disable"
)

// ResourceType names the kind of resource an event touched.
type ResourceType string

const (
	ResourceRole       ResourceType = "role"
	ResourceAssignment ResourceType = "assignment"
	ResourceModule     ResourceType = "module"
	ResourceUser       ResourceType = "user"
	ResourceSession    ResourceType = "session"
	ResourceTile       ResourceType = "tile"
)

// Event is a single audit entry.
type Event struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id,omitempty"`
	ActorID      string       `json:"actor_id,omitempty"`
	Action       Action       `json:"action"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id,omitempty"`
	Success      bool         `json:"success"`
	Message      string       `json:"message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
