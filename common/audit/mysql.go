package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Schema creates the audit table
const Schema = `CREATE TABLE IF NOT EXISTS security_events (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	kind VARCHAR(32) NOT NULL,
	event VARCHAR(64) NOT NULL,
	identity VARCHAR(64) NOT NULL,
	attempts INT NOT NULL DEFAULT 0,
	metadata JSON NULL,
	created_at DATETIME(3) NOT NULL,
	INDEX idx_security_events_created (created_at),
	INDEX idx_security_events_kind (kind, event)
)`

// MySQLRepository stores entries in the security_events table
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository wraps an open connection
func NewMySQLRepository(db *sql.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

// Migrate creates the table when missing
func (r *MySQLRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create security_events: %w", err)
	}
	return nil
}

// Record inserts one entry
func (r *MySQLRepository) Record(ctx context.Context, e Entry) error {
	var meta interface{}
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		meta = string(raw)
	}

	query := `
		INSERT INTO security_events (kind, event, identity, attempts, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, e.Kind, e.Event, e.Identity, e.Attempts, meta, e.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

// List returns matching entries newest first, with the total match count
func (r *MySQLRepository) List(ctx context.Context, f Filter) ([]Entry, int, error) {
	var where []string
	var args []interface{}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Event != "" {
		where = append(where, "event = ?")
		args = append(args, f.Event)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM security_events"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count security events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT id, kind, event, identity, attempts, metadata, created_at FROM security_events" +
		clause + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.Event, &e.Identity, &e.Attempts, &meta, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan security event: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, 0, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Purge deletes entries older than before
func (r *MySQLRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM security_events WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge security events: %w", err)
	}
	return res.RowsAffected()
}
