package authz

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// PermissionService answers authorization queries for users. Reads go through
// the configured cache; concurrent misses for the same user collapse into a
// single database resolution.
type PermissionService struct {
	store *Store
	cache PermissionCache
	log   *logrus.Entry
	group singleflight.Group
}

// NewPermissionService creates a permission service. cache may be nil, in
// which case every query resolves against storage.
func NewPermissionService(store *Store, cache PermissionCache, log *logrus.Logger) *PermissionService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PermissionService{
		store: store,
		cache: cache,
		log:   log.WithField("component", "permissions"),
	}
}

// GetUserPermissions returns the user's effective authorization set. Admin
// roles short-circuit to an admin set with no object enumeration. The user
// must belong to the given tenant.
func (s *PermissionService) GetUserPermissions(ctx context.Context, tenantID, userID string) (*ResolvedSet, error) {
	profile, err := s.store.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.TenantID != tenantID {
		return nil, ErrForbidden
	}
	if !profile.IsActive {
		return nil, ErrForbidden
	}

	if s.cache != nil {
		if set, ok := s.cache.Lookup(ctx, tenantID, userID, profile.RoleID); ok {
			return set, nil
		}
	}

	key := tenantID + "/" + userID + "/" + profile.RoleID
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		set, err := s.resolve(ctx, profile)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Store(ctx, tenantID, userID, profile.RoleID, set)
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ResolvedSet), nil
}

func (s *PermissionService) resolve(ctx context.Context, profile *UserProfile) (*ResolvedSet, error) {
	if profile.IsAdmin() {
		return NewResolvedSet(nil, true), nil
	}

	assignments, err := s.store.ListAssignments(ctx, profile.RoleID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(assignments))
	for i := range assignments {
		if !assignments[i].IsActive {
			continue
		}
		names = append(names, assignments[i].ObjectName)
	}
	return NewResolvedSet(names, false), nil
}

// CheckPermission reports whether the user may use the named authorization
// object. Admins pass every check.
func (s *PermissionService) CheckPermission(ctx context.Context, tenantID, userID, objectName string) (bool, error) {
	set, err := s.GetUserPermissions(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	if set.IsAdmin {
		return true, nil
	}
	return set.Contains(objectName), nil
}

// GetUserModules summarizes the user's role standing per module: full when
// every catalog object in the module is assigned, partial when some are, none
// otherwise. Each object reports its cascade state.
func (s *PermissionService) GetUserModules(ctx context.Context, tenantID, userID string) ([]ModuleSummary, error) {
	profile, err := s.store.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.TenantID != tenantID {
		return nil, ErrForbidden
	}

	return s.moduleSummaries(ctx, profile.RoleID, profile.IsAdmin())
}

// GetRoleModules summarizes module standing for a role directly, without a
// user in the picture.
func (s *PermissionService) GetRoleModules(ctx context.Context, roleID string) ([]ModuleSummary, error) {
	role, err := s.store.GetRoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	isAdmin := false
	for _, name := range AdminRoleNames {
		if role.Name == name {
			isAdmin = true
			break
		}
	}
	return s.moduleSummaries(ctx, role.ID, isAdmin)
}

func (s *PermissionService) moduleSummaries(ctx context.Context, roleID string, isAdmin bool) ([]ModuleSummary, error) {
	modules, err := s.store.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	assignments, err := s.store.ListAssignments(ctx, roleID)
	if err != nil {
		return nil, err
	}
	byObjectID := make(map[string]*Assignment, len(assignments))
	for i := range assignments {
		byObjectID[assignments[i].AuthObjectID] = &assignments[i]
	}

	summaries := make([]ModuleSummary, 0, len(modules))
	for _, module := range modules {
		objects, err := s.store.ListObjectsByModule(ctx, module)
		if err != nil {
			return nil, err
		}

		summary := ModuleSummary{Module: module}
		assigned := 0
		for _, object := range objects {
			status := ModuleObjectStatus{ObjectName: object.ObjectName}
			if a := byObjectID[object.ID]; a != nil && a.IsActive {
				status.Assigned = true
				status.State = a.State()
				assigned++
			} else if isAdmin {
				status.Assigned = true
				assigned++
			}
			summary.Objects = append(summary.Objects, status)
		}

		switch {
		case len(objects) > 0 && assigned == len(objects):
			summary.Access = ModuleAccessFull
		case assigned > 0:
			summary.Access = ModuleAccessPartial
		default:
			summary.Access = ModuleAccessNone
		}
		sort.Slice(summary.Objects, func(i, j int) bool {
			return summary.Objects[i].ObjectName < summary.Objects[j].ObjectName
		})
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ResolveRoleID accepts either a role UUID or a role name and returns the
// canonical role id. Names and ids resolve through the same lookup path, so
// a name colliding with a stale id cannot shadow it.
func (s *PermissionService) ResolveRoleID(ctx context.Context, nameOrID string) (string, error) {
	if _, err := uuid.Parse(nameOrID); err == nil {
		role, err := s.store.GetRoleByID(ctx, nameOrID)
		if err == nil {
			return role.ID, nil
		}
		if !IsNotFound(err) {
			return "", err
		}
	}
	role, err := s.store.GetRoleByName(ctx, nameOrID)
	if err != nil {
		return "", err
	}
	return role.ID, nil
}

// InvalidateUser drops the user's cached sets after a profile change such as
// a role switch.
func (s *PermissionService) InvalidateUser(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateUser(ctx, userID)
}
