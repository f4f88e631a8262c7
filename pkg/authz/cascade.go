package authz

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PermissionCache is the resolved-set cache consumed by the engine. Both the
// in-process and Redis implementations in pkg/cache satisfy it.
type PermissionCache interface {
	Lookup(ctx context.Context, tenantID, userID, roleID string) (*ResolvedSet, bool)
	Store(ctx context.Context, tenantID, userID, roleID string, set *ResolvedSet)
	InvalidateUser(ctx context.Context, userID string)
	InvalidateRole(ctx context.Context, roleID string)
}

// keyedMutex serializes callers per key. Lock entries are reference counted
// and removed once the last holder releases, so the map does not grow with
// the set of keys ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (km *keyedMutex) lock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()
}

func (km *keyedMutex) unlock(key string) {
	km.mu.Lock()
	l := km.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()

	l.mu.Unlock()
}

// CascadeResolver computes and mutates the set of per-object assignments
// implied by a module-level grant, and owns the inherited_from lineage
// bookkeeping. Bulk operations are serialized per (role, module) pair and run
// as single storage transactions; interleaving two concurrent cascades on the
// same pair could otherwise orphan lineage pointers.
type CascadeResolver struct {
	store *Store
	cache PermissionCache
	log   *logrus.Entry
	locks *keyedMutex
}

// NewCascadeResolver creates a cascade resolver. cache may be nil when no
// caching layer is configured.
func NewCascadeResolver(store *Store, cache PermissionCache, log *logrus.Logger) *CascadeResolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CascadeResolver{
		store: store,
		cache: cache,
		log:   log.WithField("component", "cascade"),
		locks: newKeyedMutex(),
	}
}

func cascadeKey(roleID, module string) string {
	return roleID + "/" + module
}

// GrantModuleAccess fans a module-level grant out into per-object
// assignments. Every catalog object under the module receives an assignment
// with full access flags and lineage pointing at this grant, except objects
// that already carry a custom assignment: custom assignments win, the cascade
// skips them and reports them in the result. A module with no catalog objects
// is a no-op, not an error.
func (r *CascadeResolver) GrantModuleAccess(ctx context.Context, roleID, module string, template AccessTemplate) (*GrantResult, error) {
	key := cascadeKey(roleID, module)
	r.locks.lock(key)
	defer r.locks.unlock(key)

	objects, err := r.store.ListObjectsByModule(ctx, module)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return &GrantResult{}, nil
	}

	existing, err := r.store.ListAssignmentsByModule(ctx, roleID, module)
	if err != nil {
		return nil, err
	}
	byObject := make(map[string]*Assignment, len(existing))
	for i := range existing {
		byObject[existing[i].AuthObjectID] = &existing[i]
	}

	grantID := uuid.NewString()
	result := &GrantResult{GrantID: grantID}
	var batch []Assignment

	for _, object := range objects {
		prev := byObject[object.ID]
		if prev != nil && prev.IsCustom() {
			result.Skipped = append(result.Skipped, object.ObjectName)
			continue
		}

		assignment := Assignment{
			RoleID:           roleID,
			AuthObjectID:     object.ID,
			ModuleFullAccess: true,
			ObjectFullAccess: true,
			InheritedFrom:    &grantID,
			FieldValues:      TemplateFieldValues(template),
			IsActive:         true,
			ObjectName:       object.ObjectName,
			Module:           object.Module,
		}
		if prev != nil {
			// Re-granting over an inherited assignment keeps its id and
			// any field-value overrides it accumulated.
			assignment.ID = prev.ID
			assignment.ValidFrom = prev.ValidFrom
			if len(prev.FieldValues) > 0 {
				assignment.FieldValues = prev.FieldValues
			}
		}
		batch = append(batch, assignment)
	}

	if err := r.store.UpsertAssignments(ctx, batch); err != nil {
		return nil, err
	}
	result.Granted = batch

	r.invalidateRole(ctx, roleID)
	r.log.WithFields(logrus.Fields{
		"role_id": roleID,
		"module":  module,
		"granted": len(result.Granted),
		"skipped": len(result.Skipped),
	}).Info("module access granted")
	return result, nil
}

// GrantObjectAccess grants a single catalog object with object-level lineage.
// A custom assignment on the object wins, as with the module cascade.
func (r *CascadeResolver) GrantObjectAccess(ctx context.Context, roleID, objectID string, template AccessTemplate) (*Assignment, error) {
	object, err := r.store.GetObjectByID(ctx, objectID)
	if err != nil {
		return nil, err
	}

	key := cascadeKey(roleID, object.Module)
	r.locks.lock(key)
	defer r.locks.unlock(key)

	existing, err := r.store.ListAssignmentsByModule(ctx, roleID, object.Module)
	if err != nil {
		return nil, err
	}
	var prev *Assignment
	for i := range existing {
		if existing[i].AuthObjectID == objectID {
			prev = &existing[i]
			break
		}
	}
	if prev != nil && prev.IsCustom() {
		return prev, nil
	}

	grantID := uuid.NewString()
	assignment := Assignment{
		RoleID:           roleID,
		AuthObjectID:     object.ID,
		ObjectFullAccess: true,
		InheritedFrom:    &grantID,
		FieldValues:      TemplateFieldValues(template),
		IsActive:         true,
		ObjectName:       object.ObjectName,
		Module:           object.Module,
	}
	if prev != nil {
		assignment.ID = prev.ID
		assignment.ValidFrom = prev.ValidFrom
	}
	if err := r.store.UpsertAssignment(ctx, &assignment); err != nil {
		return nil, err
	}

	r.invalidateRole(ctx, roleID)
	return &assignment, nil
}

// ClearCascade decouples every inherited assignment a role holds under a
// module: flags reset, lineage cleared, rows preserved. It is the bulk form
// of convert-to-custom. Returns the number of assignments decoupled.
func (r *CascadeResolver) ClearCascade(ctx context.Context, roleID, module string) (int, error) {
	key := cascadeKey(roleID, module)
	r.locks.lock(key)
	defer r.locks.unlock(key)

	count, err := r.store.ClearCascadeByModule(ctx, roleID, module)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		r.invalidateRole(ctx, roleID)
	}
	r.log.WithFields(logrus.Fields{
		"role_id": roleID,
		"module":  module,
		"count":   count,
	}).Info("cascade cleared")
	return count, nil
}

// RemoveModuleAssignments deletes every assignment under a module whose
// lineage traces to a module grant, as one atomic set operation. Custom
// assignments survive. Returns the count removed.
func (r *CascadeResolver) RemoveModuleAssignments(ctx context.Context, roleID, module string) (int, error) {
	key := cascadeKey(roleID, module)
	r.locks.lock(key)
	defer r.locks.unlock(key)

	count, err := r.store.DeleteInheritedByRoleAndModule(ctx, roleID, module)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		r.invalidateRole(ctx, roleID)
	}
	r.log.WithFields(logrus.Fields{
		"role_id": roleID,
		"module":  module,
		"removed": count,
	}).Info("module assignments removed")
	return count, nil
}

func (r *CascadeResolver) invalidateRole(ctx context.Context, roleID string) {
	if r.cache == nil {
		return
	}
	r.cache.InvalidateRole(ctx, roleID)
}
