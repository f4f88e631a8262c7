package tenant

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cornerstone-erp/keystone/pkg/authz"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := authz.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedUser creates an active tenant, a role, and an active user, returning
// the tenant and user ids.
func seedUser(t *testing.T, store *authz.Store, roleName string) (tenantID, userID string) {
	t.Helper()
	ctx := context.Background()

	tenant := &authz.Tenant{Code: "ACME", IsActive: true}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("Failed to create tenant: %v", err)
	}
	role := &authz.Role{Name: roleName, Description: "test role"}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}
	user := &authz.User{TenantID: tenant.ID, RoleID: role.ID, IsActive: true}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return tenant.ID, user.ID
}
