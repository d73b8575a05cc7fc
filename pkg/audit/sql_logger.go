package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// SQLLogger writes audit entries to PostgreSQL. Record accepts any Execer so
// entries land inside the caller's transaction; Search reads committed
// entries through the logger's own connection.
type SQLLogger struct {
	db *sql.DB
}

// NewSQLLogger creates a database-backed audit logger and ensures the
// audit_log table exists.
func NewSQLLogger(db *sql.DB) (*SQLLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &SQLLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_log table: %w", err)
	}
	return logger, nil
}

func (l *SQLLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		action VARCHAR(50) NOT NULL,
		actor_id BIGINT NOT NULL,
		organization_id BIGINT NOT NULL,
		resource_type VARCHAR(50) NOT NULL,
		resource_id BIGINT NOT NULL,
		details JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	-- Create indexes for common query patterns
	CREATE INDEX IF NOT EXISTS idx_audit_log_org_timestamp ON audit_log(organization_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_resource ON audit_log(resource_type, resource_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_event_type ON audit_log(event_type);
	`

	_, err := l.db.Exec(query)
	return err
}

// Record inserts the entry through exec. When exec is the mutation's
// transaction, the entry commits or rolls back with the mutation.
func (l *SQLLogger) Record(ctx context.Context, exec Execer, entry *Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	if exec == nil {
		exec = l.db
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.ResourceType == "" {
		entry.ResourceType = ResourceTypeDocument
	}
	if entry.Action == "" {
		entry.Action = entry.EventType.Action()
	}

	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (
			timestamp, event_type, action, actor_id, organization_id,
			resource_type, resource_id, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := exec.QueryRowContext(ctx, query,
		entry.Timestamp, entry.EventType, entry.Action, entry.ActorID, entry.OrganizationID,
		entry.ResourceType, entry.ResourceID, detailsJSON,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Search returns entries matching the filter, newest first. The filter's
// organization scopes the whole query.
func (l *SQLLogger) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	if filter.OrganizationID <= 0 {
		return nil, fmt.Errorf("audit search requires an organization")
	}

	query := `
		SELECT id, timestamp, event_type, action, actor_id, organization_id,
			resource_type, resource_id, details
		FROM audit_log
		WHERE organization_id = $1
	`

	args := []any{filter.OrganizationID}
	argCount := 2

	if filter.ActorID != nil {
		query += fmt.Sprintf(" AND actor_id = $%d", argCount)
		args = append(args, *filter.ActorID)
		argCount++
	}

	if filter.ResourceID != nil {
		query += fmt.Sprintf(" AND resource_id = $%d", argCount)
		args = append(args, *filter.ResourceID)
		argCount++
	}

	if len(filter.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		eventTypeStrs := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			eventTypeStrs[i] = string(et)
		}
		args = append(args, pq.Array(eventTypeStrs))
		argCount++
	}

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry := &Entry{}
		var detailsJSON []byte

		err := rows.Scan(
			&entry.ID, &entry.Timestamp, &entry.EventType, &entry.Action,
			&entry.ActorID, &entry.OrganizationID,
			&entry.ResourceType, &entry.ResourceID, &detailsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}
