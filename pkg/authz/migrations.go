package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all authorization schema migrations. The DDL sticks
// to types both PostgreSQL and SQLite understand so the same schema backs
// production and tests.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants, roles, users",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id TEXT PRIMARY KEY,
					code TEXT NOT NULL UNIQUE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE
				);

				CREATE TABLE IF NOT EXISTS roles (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL
				);

				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					role_id TEXT NOT NULL REFERENCES roles(id),
					is_active BOOLEAN NOT NULL DEFAULT TRUE
				);

				CREATE INDEX IF NOT EXISTS idx_users_tenant_id ON users(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_users_role_id ON users(role_id);
			`,
		},
		{
			Version:     2,
			Description: "Create authorization object catalog",
			SQL: `
				CREATE TABLE IF NOT EXISTS authorization_objects (
					id TEXT PRIMARY KEY,
					object_name TEXT NOT NULL UNIQUE,
					module TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT ''
				);

				CREATE INDEX IF NOT EXISTS idx_auth_objects_module ON authorization_objects(module);

				CREATE TABLE IF NOT EXISTS authorization_fields (
					id TEXT PRIMARY KEY,
					auth_object_id TEXT NOT NULL REFERENCES authorization_objects(id) ON DELETE CASCADE,
					field_name TEXT NOT NULL,
					allowed_values TEXT NOT NULL DEFAULT '[]',
					UNIQUE(auth_object_id, field_name)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create role authorization assignments",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_authorization_objects (
					id TEXT PRIMARY KEY,
					role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					auth_object_id TEXT NOT NULL REFERENCES authorization_objects(id) ON DELETE CASCADE,
					module_full_access BOOLEAN NOT NULL DEFAULT FALSE,
					object_full_access BOOLEAN NOT NULL DEFAULT FALSE,
					inherited_from TEXT,
					field_values TEXT NOT NULL DEFAULT '{}',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					valid_from TIMESTAMP NOT NULL,
					valid_to TIMESTAMP,
					UNIQUE(role_id, auth_object_id)
				);

				CREATE INDEX IF NOT EXISTS idx_role_auth_role_id ON role_authorization_objects(role_id);
				CREATE INDEX IF NOT EXISTS idx_role_auth_object_id ON role_authorization_objects(auth_object_id);
				CREATE INDEX IF NOT EXISTS idx_role_auth_inherited ON role_authorization_objects(inherited_from);
			`,
		},
		{
			Version:     4,
			Description: "Create sessions",
			SQL: `
				CREATE TABLE IF NOT EXISTS sessions (
					token_hash TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					created_at TIMESTAMP NOT NULL,
					expires_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
				CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
			`,
		},
		{
			Version:     5,
			Description: "Create tiles",
			SQL: `
				CREATE TABLE IF NOT EXISTS tiles (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL,
					auth_object TEXT NOT NULL,
					tile_category TEXT NOT NULL,
					display_order INTEGER NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT TRUE
				);

				CREATE INDEX IF NOT EXISTS idx_tiles_auth_object ON tiles(auth_object);
				CREATE INDEX IF NOT EXISTS idx_tiles_category ON tiles(tile_category);
			`,
		},
		{
			Version:     6,
			Description: "Create audit events",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL DEFAULT '',
					actor_id TEXT NOT NULL DEFAULT '',
					action TEXT NOT NULL,
					resource_type TEXT NOT NULL,
					resource_id TEXT NOT NULL DEFAULT '',
					success BOOLEAN NOT NULL DEFAULT TRUE,
					message TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_events(created_at);
				CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_events(actor_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM authz_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO authz_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// CatalogObjects returns the seeded authorization object catalog. Mirrors the
// SAP-style F_* capability objects the tiles and modules reference.
func CatalogObjects() []AuthorizationObject {
	standardFields := func() []AuthorizationField {
		return []AuthorizationField{
			{FieldName: "COMP_CODE", AllowedValues: []string{"*"}},
			{FieldName: "PLANT", AllowedValues: []string{"*"}},
			{FieldName: "DEPT", AllowedValues: []string{"*"}},
			{FieldName: "ACTION", AllowedValues: []string{"CREATE", "MODIFY", "DELETE", "REVIEW", "EXECUTE", "APPROVE"}},
		}
	}
	return []AuthorizationObject{
		{ObjectName: "F_PROJ_CRE", Module: "projects", Description: "Create projects", Fields: standardFields()},
		{ObjectName: "F_PROJ_CHG", Module: "projects", Description: "Change projects", Fields: standardFields()},
		{ObjectName: "F_PROJ_DSP", Module: "projects", Description: "Display projects", Fields: standardFields()},
		{ObjectName: "F_WBS_MNT", Module: "projects", Description: "Maintain WBS elements", Fields: standardFields()},
		{ObjectName: "F_MAT_MAS", Module: "materials", Description: "Maintain material master", Fields: standardFields()},
		{ObjectName: "F_MAT_REQ", Module: "materials", Description: "Create material requests", Fields: standardFields()},
		{ObjectName: "F_MAT_STK", Module: "materials", Description: "Display stock overview", Fields: standardFields()},
		{ObjectName: "F_FI_CCTR", Module: "finance", Description: "Cost center accounting", Fields: standardFields()},
		{ObjectName: "F_FI_POST", Module: "finance", Description: "Post financial documents", Fields: standardFields()},
		{ObjectName: "F_HR_EMP", Module: "hr", Description: "Maintain employee records", Fields: standardFields()},
	}
}

// SeedCatalog inserts any catalog objects that do not exist yet. Safe to run
// on every startup.
func SeedCatalog(ctx context.Context, store *Store) error {
	for _, object := range CatalogObjects() {
		if _, err := store.GetObjectByName(ctx, object.ObjectName); err == nil {
			continue
		} else if !IsNotFound(err) {
			return err
		}
		if err := store.CreateObject(ctx, &object); err != nil {
			return fmt.Errorf("failed to seed object %s: %w", object.ObjectName, err)
		}
	}
	return nil
}
