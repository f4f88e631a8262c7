package authz

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(setupTestDB(t))
}

// seedTenantAndRole creates a tenant and a role, returning their ids.
func seedTenantAndRole(t *testing.T, store *Store, roleName string) (tenantID, roleID string) {
	t.Helper()
	ctx := context.Background()

	tenant := &Tenant{Code: "ACME", IsActive: true}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}
	role := &Role{Name: roleName, Description: "test role"}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}
	return tenant.ID, role.ID
}

// seedUser creates an active user in the tenant with the role.
func seedUser(t *testing.T, store *Store, tenantID, roleID string) string {
	t.Helper()
	user := &User{TenantID: tenantID, RoleID: roleID, IsActive: true}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user.ID
}

// seedObject creates a catalog object under the module.
func seedObject(t *testing.T, store *Store, objectName, module string) string {
	t.Helper()
	object := &AuthorizationObject{
		ObjectName:  objectName,
		Module:      module,
		Description: objectName + " test object",
	}
	if err := store.CreateObject(context.Background(), object); err != nil {
		t.Fatalf("Failed to create object %s: %v", objectName, err)
	}
	return object.ID
}
