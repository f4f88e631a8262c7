package audit_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cornerstone-erp/keystone/pkg/audit"
	"github.com/cornerstone-erp/keystone/pkg/authz"
)

func setupLogger(t *testing.T) *audit.DBLogger {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := authz.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger, err := audit.NewDBLogger(db, nil)
	if err != nil {
		t.Fatalf("audit.NewDBLogger failed: %v", err)
	}
	return logger
}

func TestRecordFillsDefaults(t *testing.T) {
	logger := setupLogger(t)
	ctx := context.Background()

	event := &audit.Event{
		TenantID:     "t1",
		ActorID:      "u1",
		Action:       audit.ActionGrantModule,
		ResourceType: audit.ResourceModule,
		ResourceID:   "projects",
		Success:      true,
	}
	if err := logger.Record(ctx, event); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if event.ID == "" {
		t.Error("Record left the event id empty")
	}
	if event.CreatedAt.IsZero() {
		t.Error("Record left the timestamp empty")
	}

	events, err := logger.ListRecent(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	got := events[0]
	if got.Action != audit.ActionGrantModule || got.ResourceType != audit.ResourceModule {
		t.Errorf("event = %+v", got)
	}
	if !got.Success || got.ResourceID != "projects" {
		t.Errorf("event = %+v", got)
	}
}

func TestListRecentScopesAndOrders(t *testing.T) {
	logger := setupLogger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		event := &audit.Event{
			TenantID:     "t1",
			Action:       audit.ActionClearCascade,
			ResourceType: audit.ResourceModule,
			ResourceID:   fmt.Sprintf("module-%d", i),
			Success:      true,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if err := logger.Record(ctx, event); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	other := &audit.Event{TenantID: "t2", Action: audit.ActionLogin, ResourceType: audit.ResourceSession, Success: true}
	if err := logger.Record(ctx, other); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	events, err := logger.ListRecent(ctx, "t1", 3)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].ResourceID != "module-4" {
		t.Errorf("newest event = %s, want module-4", events[0].ResourceID)
	}
	for _, e := range events {
		if e.TenantID != "t1" {
			t.Errorf("event for tenant %s leaked into the listing", e.TenantID)
		}
	}
}

func TestPruneBefore(t *testing.T) {
	logger := setupLogger(t)
	ctx := context.Background()

	old := &audit.Event{
		TenantID:     "t1",
		Action:       audit.ActionLogout,
		ResourceType: audit.ResourceSession,
		Success:      true,
		CreatedAt:    time.Now().UTC().Add(-48 * time.Hour),
	}
	recent := &audit.Event{
		TenantID:     "t1",
		Action:       audit.ActionLogin,
		ResourceType: audit.ResourceSession,
		Success:      true,
	}
	if err := logger.Record(ctx, old); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := logger.Record(ctx, recent); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	count, err := logger.PruneBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if count != 1 {
		t.Errorf("pruned %d events, want 1", count)
	}

	events, err := logger.ListRecent(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(events) != 1 || events[0].Action != audit.ActionLogin {
		t.Errorf("remaining events = %+v", events)
	}
}

func TestNewDBLoggerRequiresDB(t *testing.T) {
	if _, err := audit.NewDBLogger(nil, nil); err == nil {
		t.Error("audit.NewDBLogger accepted a nil database")
	}
}
