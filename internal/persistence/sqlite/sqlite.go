package sqlite

import (
	"context"
	"fmt"
)

// schema holds the bootstrap DDL. Statements are idempotent so startup can
// apply them unconditionally.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		all_day INTEGER NOT NULL DEFAULT 0,
		multi_day INTEGER NOT NULL DEFAULT 0,
		recur_frequency TEXT,
		recur_interval INTEGER,
		recur_end_count INTEGER,
		recur_end_date TEXT,
		recur_weekdays TEXT,
		origin TEXT NOT NULL DEFAULT 'local',
		external_event_id TEXT,
		original_id TEXT,
		meeting_mode TEXT NOT NULL DEFAULT 'in_person',
		visibility TEXT NOT NULL DEFAULT 'public',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_by TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		CHECK (end_time > start_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_original_id ON schedules(original_id)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_external_event_id ON schedules(external_event_id)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_time ON schedules(start_time, end_time)`,
	`CREATE TABLE IF NOT EXISTS schedule_participants (
		schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		PRIMARY KEY (schedule_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_resources (
		schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
		resource_id TEXT NOT NULL,
		resource_type TEXT NOT NULL CHECK (resource_type IN ('room', 'vehicle', 'sample')),
		PRIMARY KEY (schedule_id, resource_id, resource_type)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_states (
		user_id TEXT PRIMARY KEY,
		last_run_at TEXT,
		last_success_at TEXT,
		last_error TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	)`,
}

// Migrate applies the bootstrap schema.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := cp.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
