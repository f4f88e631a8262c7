package tenant

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cornerstone-erp/keystone/pkg/authz"
)

func TestSessionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	store := authz.NewStore(db)
	tenantID, userID := seedUser(t, store, "Manager")
	sessions := NewSessionStore(db)
	ctx := context.Background()

	token, session, err := sessions.Create(ctx, userID, tenantID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("token %q missing prefix", token)
	}
	if session.TokenHash == token {
		t.Error("raw token stored as hash")
	}
	if got := time.Until(session.ExpiresAt); got < 11*time.Hour {
		t.Errorf("session TTL %v, want about %v", got, DefaultSessionTTL)
	}

	got, err := sessions.Lookup(ctx, token)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.UserID != userID || got.TenantID != tenantID {
		t.Errorf("Lookup = %+v, want user %s tenant %s", got, userID, tenantID)
	}

	if err := sessions.Delete(ctx, token); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := sessions.Lookup(ctx, token); !authz.IsUnauthorized(err) {
		t.Errorf("Lookup after delete = %v, want unauthorized", err)
	}

	// Deleting an already revoked token is not an error.
	if err := sessions.Delete(ctx, token); err != nil {
		t.Errorf("repeat Delete = %v", err)
	}
}

func TestLookupRejectsBadTokens(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionStore(db)
	ctx := context.Background()

	for _, token := range []string{"", "garbage", "ks_", "ks_" + strings.Repeat("A", 43)} {
		if _, err := sessions.Lookup(ctx, token); !authz.IsUnauthorized(err) {
			t.Errorf("Lookup(%q) = %v, want unauthorized", token, err)
		}
	}
}

func TestLookupExpiredSession(t *testing.T) {
	db := setupTestDB(t)
	store := authz.NewStore(db)
	tenantID, userID := seedUser(t, store, "Manager")

	sessions := NewSessionStore(db)
	sessions.ttl = -time.Minute
	ctx := context.Background()

	token, _, err := sessions.Create(ctx, userID, tenantID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := sessions.Lookup(ctx, token); !authz.IsUnauthorized(err) {
		t.Errorf("Lookup of expired session = %v, want unauthorized", err)
	}
}

func TestDeleteForUser(t *testing.T) {
	db := setupTestDB(t)
	store := authz.NewStore(db)
	tenantID, userID := seedUser(t, store, "Manager")

	other := &authz.User{TenantID: tenantID, RoleID: "", IsActive: true}
	role := &authz.Role{Name: "Viewer"}
	if err := store.CreateRole(context.Background(), role); err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}
	other.RoleID = role.ID
	if err := store.CreateUser(context.Background(), other); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	sessions := NewSessionStore(db)
	ctx := context.Background()

	first, _, _ := sessions.Create(ctx, userID, tenantID)
	second, _, _ := sessions.Create(ctx, userID, tenantID)
	third, _, _ := sessions.Create(ctx, other.ID, tenantID)

	if err := sessions.DeleteForUser(ctx, userID); err != nil {
		t.Fatalf("DeleteForUser failed: %v", err)
	}
	if _, err := sessions.Lookup(ctx, first); !authz.IsUnauthorized(err) {
		t.Error("first session survived DeleteForUser")
	}
	if _, err := sessions.Lookup(ctx, second); !authz.IsUnauthorized(err) {
		t.Error("second session survived DeleteForUser")
	}
	if _, err := sessions.Lookup(ctx, third); err != nil {
		t.Errorf("another user's session was revoked: %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	store := authz.NewStore(db)
	tenantID, userID := seedUser(t, store, "Manager")
	ctx := context.Background()

	expired := NewSessionStore(db)
	expired.ttl = -time.Hour
	if _, _, err := expired.Create(ctx, userID, tenantID); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	live := NewSessionStore(db)
	liveToken, _, err := live.Create(ctx, userID, tenantID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	count, err := live.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if count != 1 {
		t.Errorf("DeleteExpired removed %d sessions, want 1", count)
	}
	if _, err := live.Lookup(ctx, liveToken); err != nil {
		t.Errorf("live session was pruned: %v", err)
	}
}
