package authz

import (
	"time"
)

// AdminRoleNames are role names that bypass authorization object checks
// entirely. Users holding one of these roles are treated as administrators.
var AdminRoleNames = []string{"Admin", "System Administrator"}

// Tenant is the isolation boundary for all role, user, and assignment data.
type Tenant struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	IsActive bool   `json:"is_active"`
}

// Role represents a named role that users reference. Roles are tenant-scoped
// by convention of the users that reference them; role rows themselves carry
// no tenant column.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// User links an account to its tenant and role.
type User struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	RoleID   string `json:"role_id"`
	IsActive bool   `json:"is_active"`
}

// UserProfile is a user joined with its role, as loaded for resolution.
type UserProfile struct {
	User
	RoleName string `json:"role_name"`
}

// IsAdmin reports whether the profile's role bypasses object checks.
func (p *UserProfile) IsAdmin() bool {
	for _, name := range AdminRoleNames {
		if p.RoleName == name {
			return true
		}
	}
	return false
}

// AuthorizationObject is a named capability unit (SAP-style) that a role can
// be granted, grouped under a module.
type AuthorizationObject struct {
	ID          string               `json:"id"`
	ObjectName  string               `json:"object_name"`
	Module      string               `json:"module"`
	Description string               `json:"description,omitempty"`
	Fields      []AuthorizationField `json:"fields,omitempty"`
}

// AuthorizationField is a sub-dimension of an authorization object
// restricting which values are permitted.
type AuthorizationField struct {
	ID            string   `json:"id"`
	ObjectID      string   `json:"object_id"`
	FieldName     string   `json:"field_name"`
	AllowedValues []string `json:"allowed_values"`
}

// FieldValues maps a field name to the values an assignment permits for it.
type FieldValues map[string][]string

// AssignmentState describes where an assignment sits in the cascade
// lifecycle.
type AssignmentState string

const (
	// StateCustom marks an assignment created directly or deliberately
	// decoupled from a cascade. Module-level bulk operations never touch it.
	StateCustom AssignmentState = "custom"
	// StateModuleInherited marks an assignment produced by a module-level
	// cascade grant.
	StateModuleInherited AssignmentState = "module_inherited"
	// StateObjectInherited marks an assignment produced by a single-object
	// cascade grant.
	StateObjectInherited AssignmentState = "object_inherited"
)

// Assignment is a role's grant of one authorization object. At most one
// assignment exists per (role, object) pair. InheritedFrom links a
// cascade-derived assignment back to the grant that produced it; nil means
// custom.
type Assignment struct {
	ID               string      `json:"id"`
	RoleID           string      `json:"role_id"`
	AuthObjectID     string      `json:"auth_object_id"`
	ModuleFullAccess bool        `json:"module_full_access"`
	ObjectFullAccess bool        `json:"object_full_access"`
	InheritedFrom    *string     `json:"inherited_from,omitempty"`
	FieldValues      FieldValues `json:"field_values"`
	IsActive         bool        `json:"is_active"`
	ValidFrom        time.Time   `json:"valid_from"`
	ValidTo          *time.Time  `json:"valid_to,omitempty"`

	// Denormalized from the object catalog on reads that join it.
	ObjectName string `json:"object_name,omitempty"`
	Module     string `json:"module,omitempty"`
}

// IsCustom reports whether the assignment is decoupled from any cascade.
func (a *Assignment) IsCustom() bool {
	return a.InheritedFrom == nil
}

// State derives the assignment's cascade state from its flags and lineage.
func (a *Assignment) State() AssignmentState {
	switch {
	case a.InheritedFrom == nil:
		return StateCustom
	case a.ModuleFullAccess:
		return StateModuleInherited
	default:
		return StateObjectInherited
	}
}

// ResolvedSet is the effective authorization set for a (user, role) pair.
// It is derived, never persisted.
type ResolvedSet struct {
	Objects map[string]struct{} `json:"objects"`
	IsAdmin bool                `json:"is_admin"`
}

// NewResolvedSet builds a set from object names.
func NewResolvedSet(objects []string, isAdmin bool) *ResolvedSet {
	set := &ResolvedSet{
		Objects: make(map[string]struct{}, len(objects)),
		IsAdmin: isAdmin,
	}
	for _, name := range objects {
		set.Objects[name] = struct{}{}
	}
	return set
}

// Contains reports whether the set includes the named authorization object.
func (s *ResolvedSet) Contains(objectName string) bool {
	_, ok := s.Objects[objectName]
	return ok
}

// ObjectNames returns the member object names in unspecified order.
func (s *ResolvedSet) ObjectNames() []string {
	names := make([]string, 0, len(s.Objects))
	for name := range s.Objects {
		names = append(names, name)
	}
	return names
}

// ModuleAccess summarizes a role's standing for one module.
type ModuleAccess string

const (
	ModuleAccessFull    ModuleAccess = "full"
	ModuleAccessPartial ModuleAccess = "partial"
	ModuleAccessNone    ModuleAccess = "none"
)

// ModuleObjectStatus reports one object's lineage inside a module summary.
type ModuleObjectStatus struct {
	ObjectName string          `json:"object_name"`
	Assigned   bool            `json:"assigned"`
	State      AssignmentState `json:"state,omitempty"`
}

// ModuleSummary is the per-module view returned by GetUserModules.
type ModuleSummary struct {
	Module  string               `json:"module"`
	Access  ModuleAccess         `json:"access"`
	Objects []ModuleObjectStatus `json:"objects"`
}

// GrantResult reports the outcome of a module-level cascade grant.
type GrantResult struct {
	GrantID string       `json:"grant_id"`
	Granted []Assignment `json:"granted"`
	// Skipped lists object names that already carried a custom assignment.
	// Custom assignments win; the cascade does not overwrite them.
	Skipped []string `json:"skipped,omitempty"`
}

// AccessTemplate names a canned set of field values applied when a grant
// creates an assignment.
type AccessTemplate string

const (
	TemplateFullAccess AccessTemplate = "full_access"
	TemplateReadOnly   AccessTemplate = "read_only"
	TemplateDefault    AccessTemplate = "default"
)

// TemplateFieldValues returns the field values a template expands to.
func TemplateFieldValues(template AccessTemplate) FieldValues {
	switch template {
	case TemplateFullAccess:
		return FieldValues{
			"COMP_CODE": {"*"},
			"PLANT":     {"*"},
			"DEPT":      {"*"},
			"ACTION":    {"CREATE", "MODIFY", "DELETE", "REVIEW", "EXECUTE", "APPROVE"},
		}
	case TemplateReadOnly:
		return FieldValues{
			"COMP_CODE": {"*"},
			"PLANT":     {"*"},
			"DEPT":      {"*"},
			"ACTION":    {"REVIEW"},
		}
	default:
		return FieldValues{
			"COMP_CODE": {"1000"},
			"PLANT":     {"P001"},
			"DEPT":      {"ADMIN"},
			"ACTION":    {"REVIEW"},
		}
	}
}
