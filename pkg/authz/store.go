package authz

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store handles authorization data persistence. All SQL is written to run on
// both PostgreSQL (production) and SQLite (tests): numbered placeholders,
// boolean and timestamp values passed as arguments, no server-side defaults
// relied on in queries.
type Store struct {
	db *sql.DB
}

// NewStore creates a new authorization store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for components that share the connection
// (sessions, tiles, audit).
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateTenant inserts a tenant. The ID is generated when empty.
func (s *Store) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	query := `INSERT INTO tenants (id, code, is_active) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, tenant.ID, tenant.Code, tenant.IsActive); err != nil {
		return NewStoreError("create tenant", err)
	}
	return nil
}

// GetTenantByID retrieves a tenant by id.
func (s *Store) GetTenantByID(ctx context.Context, tenantID string) (*Tenant, error) {
	query := `SELECT id, code, is_active FROM tenants WHERE id = $1`
	var tenant Tenant
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&tenant.ID, &tenant.Code, &tenant.IsActive)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("get tenant", err)
	}
	return &tenant, nil
}

// CreateRole inserts a role. The ID is generated when empty.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO roles (id, name, description, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.ExecContext(ctx, query, role.ID, role.Name, role.Description, role.CreatedAt); err != nil {
		return NewStoreError("create role", err)
	}
	return nil
}

// CreateUser inserts a user. The ID is generated when empty.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	query := `INSERT INTO users (id, tenant_id, role_id, is_active) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.TenantID, user.RoleID, user.IsActive); err != nil {
		return NewStoreError("create user", err)
	}
	return nil
}

// UpdateUserRole reassigns a user to a different role.
func (s *Store) UpdateUserRole(ctx context.Context, userID, roleID string) error {
	query := `UPDATE users SET role_id = $1 WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, roleID, userID)
	if err != nil {
		return NewStoreError("update user role", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// SetUserActive enables or disables a user account. Disabled users keep
// their assignments but fail every permission resolution.
func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) error {
	query := `UPDATE users SET is_active = $1 WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, active, userID)
	if err != nil {
		return NewStoreError("set user active", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// GetRoleByID retrieves a role by id.
func (s *Store) GetRoleByID(ctx context.Context, roleID string) (*Role, error) {
	query := `SELECT id, name, description, created_at FROM roles WHERE id = $1`
	var role Role
	err := s.db.QueryRowContext(ctx, query, roleID).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %s: %w", roleID, ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("get role", err)
	}
	return &role, nil
}

// GetRoleByName retrieves a role by its unique name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `SELECT id, name, description, created_at FROM roles WHERE name = $1`
	var role Role
	err := s.db.QueryRowContext(ctx, query, name).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("get role by name", err)
	}
	return &role, nil
}

// GetUserProfile loads a user joined with its role name.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	query := `
		SELECT u.id, u.tenant_id, u.role_id, u.is_active, r.name
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1
	`
	var profile UserProfile
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.User.ID,
		&profile.TenantID,
		&profile.RoleID,
		&profile.User.IsActive,
		&profile.RoleName,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("get user profile", err)
	}
	return &profile, nil
}

// ListUserIDsByRole returns the ids of active users currently holding a role.
// Cache invalidation after a role mutation fans out over this list.
func (s *Store) ListUserIDsByRole(ctx context.Context, roleID string) ([]string, error) {
	query := `SELECT id FROM users WHERE role_id = $1 AND is_active = $2`
	rows, err := s.db.QueryContext(ctx, query, roleID, true)
	if err != nil {
		return nil, NewStoreError("list users by role", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, NewStoreError("scan user id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateObject inserts a catalog object along with its fields.
func (s *Store) CreateObject(ctx context.Context, object *AuthorizationObject) error {
	if object.ID == "" {
		object.ID = uuid.NewString()
	}
	query := `INSERT INTO authorization_objects (id, object_name, module, description) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.ExecContext(ctx, query, object.ID, object.ObjectName, object.Module, object.Description); err != nil {
		return NewStoreError("create object", err)
	}
	for i := range object.Fields {
		field := &object.Fields[i]
		if field.ID == "" {
			field.ID = uuid.NewString()
		}
		field.ObjectID = object.ID
		values, err := json.Marshal(field.AllowedValues)
		if err != nil {
			return NewStoreError("marshal field values", err)
		}
		fieldQuery := `INSERT INTO authorization_fields (id, auth_object_id, field_name, allowed_values) VALUES ($1, $2, $3, $4)`
		if _, err := s.db.ExecContext(ctx, fieldQuery, field.ID, object.ID, field.FieldName, string(values)); err != nil {
			return NewStoreError("create field", err)
		}
	}
	return nil
}

// GetObjectByName retrieves a catalog object by its unique name.
func (s *Store) GetObjectByName(ctx context.Context, objectName string) (*AuthorizationObject, error) {
	query := `SELECT id, object_name, module, description FROM authorization_objects WHERE object_name = $1`
	var object AuthorizationObject
	err := s.db.QueryRowContext(ctx, query, objectName).Scan(&object.ID, &object.ObjectName, &object.Module, &object.Description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("authorization object %q: %w", objectName, ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("get object by name", err)
	}
	return &object, nil
}

// GetObjectByID retrieves a catalog object by id.
func (s *Store) GetObjectByID(ctx context.Context, objectID string) (*AuthorizationObject, error) {
	query := `SELECT id, object_name, module, description FROM authorization_objects WHERE id = $1`
	var object AuthorizationObject
	err := s.db.QueryRowContext(ctx, query, objectID).Scan(&object.ID, &object.ObjectName, &object.Module, &object.Description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("authorization object %s: %w", objectID, ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("get object", err)
	}
	return &object, nil
}

// ListObjectsByModule returns the catalog objects grouped under a module,
// ordered by object name. An unknown module yields an empty slice.
func (s *Store) ListObjectsByModule(ctx context.Context, module string) ([]AuthorizationObject, error) {
	query := `
		SELECT id, object_name, module, description
		FROM authorization_objects
		WHERE module = $1
		ORDER BY object_name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, module)
	if err != nil {
		return nil, NewStoreError("list objects by module", err)
	}
	defer rows.Close()
	return scanObjects(rows)
}

// ListObjects returns the whole catalog ordered by module then object name.
func (s *Store) ListObjects(ctx context.Context) ([]AuthorizationObject, error) {
	query := `
		SELECT id, object_name, module, description
		FROM authorization_objects
		ORDER BY module ASC, object_name ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewStoreError("list objects", err)
	}
	defer rows.Close()
	return scanObjects(rows)
}

// ListModules returns the distinct module names in the catalog, ordered.
func (s *Store) ListModules(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT module FROM authorization_objects ORDER BY module ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewStoreError("list modules", err)
	}
	defer rows.Close()

	var modules []string
	for rows.Next() {
		var module string
		if err := rows.Scan(&module); err != nil {
			return nil, NewStoreError("scan module", err)
		}
		modules = append(modules, module)
	}
	return modules, rows.Err()
}

// GetObjectFields returns the field catalog for an object.
func (s *Store) GetObjectFields(ctx context.Context, objectID string) ([]AuthorizationField, error) {
	query := `
		SELECT id, auth_object_id, field_name, allowed_values
		FROM authorization_fields
		WHERE auth_object_id = $1
		ORDER BY field_name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, objectID)
	if err != nil {
		return nil, NewStoreError("get object fields", err)
	}
	defer rows.Close()

	var fields []AuthorizationField
	for rows.Next() {
		var field AuthorizationField
		var valuesJSON string
		if err := rows.Scan(&field.ID, &field.ObjectID, &field.FieldName, &valuesJSON); err != nil {
			return nil, NewStoreError("scan field", err)
		}
		if err := json.Unmarshal([]byte(valuesJSON), &field.AllowedValues); err != nil {
			field.AllowedValues = nil
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

const assignmentColumns = `
	a.id, a.role_id, a.auth_object_id, a.module_full_access, a.object_full_access,
	a.inherited_from, a.field_values, a.is_active, a.valid_from, a.valid_to,
	o.object_name, o.module
`

// ListAssignments returns all active assignments for a role, joined with the
// object catalog.
func (s *Store) ListAssignments(ctx context.Context, roleID string) ([]Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM role_authorization_objects a
		JOIN authorization_objects o ON o.id = a.auth_object_id
		WHERE a.role_id = $1 AND a.is_active = $2
		ORDER BY o.module ASC, o.object_name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roleID, true)
	if err != nil {
		return nil, NewStoreError("list assignments", err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// ListAssignmentsByModule returns a role's active assignments restricted to
// one module.
func (s *Store) ListAssignmentsByModule(ctx context.Context, roleID, module string) ([]Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM role_authorization_objects a
		JOIN authorization_objects o ON o.id = a.auth_object_id
		WHERE a.role_id = $1 AND o.module = $2 AND a.is_active = $3
		ORDER BY o.object_name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roleID, module, true)
	if err != nil {
		return nil, NewStoreError("list assignments by module", err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// GetAssignmentByID retrieves a single assignment joined with its object.
func (s *Store) GetAssignmentByID(ctx context.Context, assignmentID string) (*Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM role_authorization_objects a
		JOIN authorization_objects o ON o.id = a.auth_object_id
		WHERE a.id = $1
	`
	row := s.db.QueryRowContext(ctx, query, assignmentID)
	assignment, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("assignment %s: %w", assignmentID, ErrNotFound)
	}
	if err != nil {
		return nil, NewStoreError("get assignment", err)
	}
	return assignment, nil
}

// UpsertAssignment inserts an assignment or, when the (role, object) pair
// already exists, updates the existing row in place. The uniqueness invariant
// is enforced by the storage constraint, never by read-then-write.
func (s *Store) UpsertAssignment(ctx context.Context, assignment *Assignment) error {
	return s.upsertAssignment(ctx, s.db, assignment)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) upsertAssignment(ctx context.Context, db execer, assignment *Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.ValidFrom.IsZero() {
		assignment.ValidFrom = time.Now().UTC()
	}
	valuesJSON, err := json.Marshal(assignment.FieldValues)
	if err != nil {
		return NewStoreError("marshal field values", err)
	}

	query := `
		INSERT INTO role_authorization_objects
			(id, role_id, auth_object_id, module_full_access, object_full_access,
			 inherited_from, field_values, is_active, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (role_id, auth_object_id) DO UPDATE SET
			module_full_access = excluded.module_full_access,
			object_full_access = excluded.object_full_access,
			inherited_from = excluded.inherited_from,
			field_values = excluded.field_values,
			is_active = excluded.is_active,
			valid_to = excluded.valid_to
	`
	_, err = db.ExecContext(ctx, query,
		assignment.ID,
		assignment.RoleID,
		assignment.AuthObjectID,
		assignment.ModuleFullAccess,
		assignment.ObjectFullAccess,
		assignment.InheritedFrom,
		string(valuesJSON),
		assignment.IsActive,
		assignment.ValidFrom,
		assignment.ValidTo,
	)
	if err != nil {
		return NewStoreError("upsert assignment", err)
	}
	return nil
}

// UpsertAssignments applies a batch of upserts inside one transaction. Either
// every assignment lands or none does.
func (s *Store) UpsertAssignments(ctx context.Context, assignments []Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStoreError("begin upsert batch", err)
	}
	for i := range assignments {
		if err := s.upsertAssignment(ctx, tx, &assignments[i]); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return NewStoreError("commit upsert batch", err)
	}
	return nil
}

// UpdateAssignmentLineage rewrites the cascade flags and lineage pointer of a
// single assignment, leaving field values and the row itself intact.
func (s *Store) UpdateAssignmentLineage(ctx context.Context, assignmentID string, moduleFull, objectFull bool, inheritedFrom *string) error {
	query := `
		UPDATE role_authorization_objects
		SET module_full_access = $1, object_full_access = $2, inherited_from = $3
		WHERE id = $4
	`
	res, err := s.db.ExecContext(ctx, query, moduleFull, objectFull, inheritedFrom, assignmentID)
	if err != nil {
		return NewStoreError("update assignment lineage", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("assignment %s: %w", assignmentID, ErrNotFound)
	}
	return nil
}

// UpdateAssignmentFieldValues replaces an assignment's field-value overrides.
func (s *Store) UpdateAssignmentFieldValues(ctx context.Context, assignmentID string, values FieldValues) error {
	valuesJSON, err := json.Marshal(values)
	if err != nil {
		return NewStoreError("marshal field values", err)
	}
	query := `UPDATE role_authorization_objects SET field_values = $1 WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, string(valuesJSON), assignmentID)
	if err != nil {
		return NewStoreError("update assignment field values", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("assignment %s: %w", assignmentID, ErrNotFound)
	}
	return nil
}

// ClearCascadeByModule resets the cascade flags and lineage of every inherited
// assignment a role holds under a module. Rows are preserved; only flags
// change. Returns the number of rows decoupled.
func (s *Store) ClearCascadeByModule(ctx context.Context, roleID, module string) (int, error) {
	query := `
		UPDATE role_authorization_objects
		SET module_full_access = $1, object_full_access = $2, inherited_from = NULL
		WHERE role_id = $3
		  AND inherited_from IS NOT NULL
		  AND auth_object_id IN (SELECT id FROM authorization_objects WHERE module = $4)
	`
	res, err := s.db.ExecContext(ctx, query, false, false, roleID, module)
	if err != nil {
		return 0, NewStoreError("clear cascade", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, NewStoreError("clear cascade rows", err)
	}
	return int(n), nil
}

// DeleteAssignmentByID deletes one assignment. Returns whether a row was
// actually removed so callers can distinguish delete from no-op.
func (s *Store) DeleteAssignmentByID(ctx context.Context, assignmentID string) (bool, error) {
	query := `DELETE FROM role_authorization_objects WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, assignmentID)
	if err != nil {
		return false, NewStoreError("delete assignment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, NewStoreError("delete assignment rows", err)
	}
	return n > 0, nil
}

// DeleteInheritedByRoleAndModule removes every cascade-derived assignment a
// role holds under a module in one statement. Custom assignments
// (inherited_from IS NULL) are never touched. The single DELETE makes the
// operation atomic at the storage layer: it either removes the whole set or,
// on failure, nothing.
func (s *Store) DeleteInheritedByRoleAndModule(ctx context.Context, roleID, module string) (int, error) {
	query := `
		DELETE FROM role_authorization_objects
		WHERE role_id = $1
		  AND inherited_from IS NOT NULL
		  AND auth_object_id IN (SELECT id FROM authorization_objects WHERE module = $2)
	`
	res, err := s.db.ExecContext(ctx, query, roleID, module)
	if err != nil {
		return 0, NewStoreError("delete module assignments", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, NewStoreError("delete module assignment rows", err)
	}
	return int(n), nil
}

func scanObjects(rows *sql.Rows) ([]AuthorizationObject, error) {
	var objects []AuthorizationObject
	for rows.Next() {
		var object AuthorizationObject
		if err := rows.Scan(&object.ID, &object.ObjectName, &object.Module, &object.Description); err != nil {
			return nil, NewStoreError("scan object", err)
		}
		objects = append(objects, object)
	}
	return objects, rows.Err()
}

func scanAssignments(rows *sql.Rows) ([]Assignment, error) {
	var assignments []Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, NewStoreError("scan assignment", err)
		}
		assignments = append(assignments, *assignment)
	}
	return assignments, rows.Err()
}

func scanAssignment(scanner interface {
	Scan(dest ...interface{}) error
}) (*Assignment, error) {
	var assignment Assignment
	var inheritedFrom sql.NullString
	var valuesJSON string
	var validTo sql.NullTime

	err := scanner.Scan(
		&assignment.ID,
		&assignment.RoleID,
		&assignment.AuthObjectID,
		&assignment.ModuleFullAccess,
		&assignment.ObjectFullAccess,
		&inheritedFrom,
		&valuesJSON,
		&assignment.IsActive,
		&assignment.ValidFrom,
		&validTo,
		&assignment.ObjectName,
		&assignment.Module,
	)
	if err != nil {
		return nil, err
	}

	if inheritedFrom.Valid {
		v := inheritedFrom.String
		assignment.InheritedFrom = &v
	}
	if validTo.Valid {
		t := validTo.Time
		assignment.ValidTo = &t
	}
	if valuesJSON != "" {
		if err := json.Unmarshal([]byte(valuesJSON), &assignment.FieldValues); err != nil {
			assignment.FieldValues = FieldValues{}
		}
	} else {
		assignment.FieldValues = FieldValues{}
	}

	return &assignment, nil
}
