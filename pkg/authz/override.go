package authz

import (
	"context"

	"github.com/sirupsen/logrus"
)

// OverrideManager handles single-assignment mutations: decoupling an
// assignment from its grant lineage, editing field-level values, and removal.
type OverrideManager struct {
	store *Store
	cache PermissionCache
	log   *logrus.Entry
}

// NewOverrideManager creates an override manager. cache may be nil.
func NewOverrideManager(store *Store, cache PermissionCache, log *logrus.Logger) *OverrideManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OverrideManager{
		store: store,
		cache: cache,
		log:   log.WithField("component", "override"),
	}
}

// ConvertToCustom decouples an assignment from the cascade that produced it:
// both full-access flags reset and the lineage pointer clears, while field
// values and the row itself survive. Converting an already-custom assignment
// is a no-op returning the current state.
func (m *OverrideManager) ConvertToCustom(ctx context.Context, assignmentID string) (*Assignment, error) {
	assignment, err := m.store.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment.IsCustom() {
		return assignment, nil
	}

	if err := m.store.UpdateAssignmentLineage(ctx, assignmentID, false, false, nil); err != nil {
		return nil, err
	}
	assignment.ModuleFullAccess = false
	assignment.ObjectFullAccess = false
	assignment.InheritedFrom = nil

	m.invalidateRole(ctx, assignment.RoleID)
	m.log.WithFields(logrus.Fields{
		"assignment_id": assignmentID,
		"role_id":       assignment.RoleID,
		"object":        assignment.ObjectName,
	}).Info("assignment converted to custom")
	return assignment, nil
}

// UpdateFieldValues replaces an assignment's field-level values wholesale.
func (m *OverrideManager) UpdateFieldValues(ctx context.Context, assignmentID string, values FieldValues) (*Assignment, error) {
	assignment, err := m.store.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := m.store.UpdateAssignmentFieldValues(ctx, assignmentID, values); err != nil {
		return nil, err
	}
	assignment.FieldValues = values

	m.invalidateRole(ctx, assignment.RoleID)
	return assignment, nil
}

// RemoveAssignment deletes a single assignment regardless of its lineage
// state. Returns ErrNotFound when no row matches.
func (m *OverrideManager) RemoveAssignment(ctx context.Context, assignmentID string) error {
	assignment, err := m.store.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return err
	}

	removed, err := m.store.DeleteAssignmentByID(ctx, assignmentID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}

	m.invalidateRole(ctx, assignment.RoleID)
	m.log.WithFields(logrus.Fields{
		"assignment_id": assignmentID,
		"role_id":       assignment.RoleID,
		"object":        assignment.ObjectName,
	}).Info("assignment removed")
	return nil
}

func (m *OverrideManager) invalidateRole(ctx context.Context, roleID string) {
	if m.cache == nil {
		return
	}
	m.cache.InvalidateRole(ctx, roleID)
}
