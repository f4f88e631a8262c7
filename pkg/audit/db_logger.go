package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DBLogger writes audit events to the audit_events table.
type DBLogger struct {
	db  *sql.DB
	log *logrus.Entry
}

// NewDBLogger creates a database-backed audit logger. The audit_events table
// is created by the migration runner, not here.
func NewDBLogger(db *sql.DB, log *logrus.Logger) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DBLogger{
		db:  db,
		log: log.WithField("component", "audit"),
	}, nil
}

// Record inserts the event. ID and CreatedAt are filled in when empty.
func (l *DBLogger) Record(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (id, tenant_id, actor_id, action, resource_type, resource_id, success, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := l.db.ExecContext(ctx, query,
		event.ID, event.TenantID, event.ActorID, string(event.Action),
		string(event.ResourceType), event.ResourceID, event.Success,
		event.Message, event.CreatedAt)
	if err != nil {
		l.log.WithError(err).WithField("action", event.Action).Error("audit write failed")
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the logger does not own the database handle.
func (l *DBLogger) Close() error { return nil }

// ListRecent returns the newest events for a tenant, newest first.
func (l *DBLogger) ListRecent(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, tenant_id, actor_id, action, resource_type, resource_id, success, message, created_at
		FROM audit_events
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := l.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var action, resourceType string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &action,
			&resourceType, &e.ResourceID, &e.Success, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Action = Action(action)
		e.ResourceType = ResourceType(resourceType)
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneBefore deletes events older than the cutoff. Returns the count
// removed. Run periodically under the retention policy.
func (l *DBLogger) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	if count > 0 {
		l.log.WithField("pruned", count).Info("audit retention applied")
	}
	return count, nil
}
