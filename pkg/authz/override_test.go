package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestConvertToCustom(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, roleID := seedTenantAndRole(t, store, "Manager")
	seedObject(t, store, "F_PROJ_CRE", "projects")

	resolver := NewCascadeResolver(store, nil, nil)
	result, err := resolver.GrantModuleAccess(ctx, roleID, "projects", TemplateFullAccess)
	if err != nil {
		t.Fatalf("GrantModuleAccess failed: %v", err)
	}
	assignmentID := result.Granted[0].ID

	tracker := &trackingCache{}
	overrides := NewOverrideManager(store, tracker, nil)
	converted, err := overrides.ConvertToCustom(ctx, assignmentID)
	if err != nil {
		t.Fatalf("ConvertToCustom failed: %v", err)
	}
	if converted.State() != StateCustom {
		t.Errorf("state = %s after convert, want custom", converted.State())
	}
	if converted.InheritedFrom != nil {
		t.Error("convert kept the grant lineage")
	}
	if tracker.roleCalls() != 1 {
		t.Errorf("convert invalidated role %d times, want 1", tracker.roleCalls())
	}

	// Converting an already custom assignment is a no-op.
	again, err := overrides.ConvertToCustom(ctx, assignmentID)
	if err != nil {
		t.Fatalf("second ConvertToCustom failed: %v", err)
	}
	if again.State() != StateCustom {
		t.Errorf("state = %s after repeat convert, want custom", again.State())
	}
	if tracker.roleCalls() != 1 {
		t.Errorf("no-op convert invalidated the cache, calls = %d", tracker.roleCalls())
	}
}

func TestUpdateFieldValues(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, roleID := seedTenantAndRole(t, store, "Manager")
	objectID := seedObject(t, store, "F_MAT_DSP", "materials")

	resolver := NewCascadeResolver(store, nil, nil)
	assignment, err := resolver.GrantObjectAccess(ctx, roleID, objectID, TemplateDefault)
	if err != nil {
		t.Fatalf("GrantObjectAccess failed: %v", err)
	}

	overrides := NewOverrideManager(store, nil, nil)
	updated, err := overrides.UpdateFieldValues(ctx, assignment.ID, FieldValues{
		"PLANT":  {"P001", "P002"},
		"ACTION": {"REVIEW", "MODIFY"},
	})
	if err != nil {
		t.Fatalf("UpdateFieldValues failed: %v", err)
	}
	if len(updated.FieldValues["PLANT"]) != 2 {
		t.Errorf("returned field values stale: %v", updated.FieldValues)
	}

	got, err := store.GetAssignmentByID(ctx, assignment.ID)
	if err != nil {
		t.Fatalf("GetAssignmentByID failed: %v", err)
	}
	// Replacement is wholesale, not a merge.
	if _, ok := got.FieldValues["COMP_CODE"]; ok {
		t.Errorf("old field values survived the replace: %v", got.FieldValues)
	}
	if len(got.FieldValues["ACTION"]) != 2 {
		t.Errorf("ACTION = %v, want two values", got.FieldValues["ACTION"])
	}
	// Updating values does not decouple the assignment.
	if got.State() != StateObjectInherited {
		t.Errorf("state = %s after update, want object_inherited", got.State())
	}
}

func TestRemoveAssignment(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, roleID := seedTenantAndRole(t, store, "Manager")
	objectID := seedObject(t, store, "F_PROJ_REL", "projects")

	resolver := NewCascadeResolver(store, nil, nil)
	assignment, err := resolver.GrantObjectAccess(ctx, roleID, objectID, TemplateFullAccess)
	if err != nil {
		t.Fatalf("GrantObjectAccess failed: %v", err)
	}

	overrides := NewOverrideManager(store, nil, nil)
	if err := overrides.RemoveAssignment(ctx, assignment.ID); err != nil {
		t.Fatalf("RemoveAssignment failed: %v", err)
	}
	if _, err := store.GetAssignmentByID(ctx, assignment.ID); !IsNotFound(err) {
		t.Errorf("assignment still present after removal, err = %v", err)
	}

	if err := overrides.RemoveAssignment(ctx, assignment.ID); !IsNotFound(err) {
		t.Errorf("removing a removed assignment returned %v, want not found", err)
	}
	if err := overrides.RemoveAssignment(ctx, uuid.NewString()); !IsNotFound(err) {
		t.Errorf("removing an unknown assignment returned %v, want not found", err)
	}
}
