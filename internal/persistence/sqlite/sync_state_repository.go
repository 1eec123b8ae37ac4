package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/groupware-scheduler/internal/persistence"
)

// SyncStateRepository implements persistence.SyncStateRepository using SQLite.
type SyncStateRepository struct {
	pool *ConnectionPool
}

// NewSyncStateRepository creates a new SQLite sync state repository.
func NewSyncStateRepository(pool *ConnectionPool) *SyncStateRepository {
	return &SyncStateRepository{pool: pool}
}

// GetSyncState retrieves the sync bookkeeping record for a user.
func (r *SyncStateRepository) GetSyncState(ctx context.Context, userID string) (persistence.SyncState, error) {
	if userID == "" {
		return persistence.SyncState{}, persistence.ErrNotFound
	}

	row := r.pool.db.QueryRowContext(ctx, `
		SELECT user_id, last_run_at, last_success_at, last_error, updated_at
		FROM sync_states WHERE user_id = ?
	`, userID)

	var state persistence.SyncState
	var lastRun, lastSuccess sql.NullString
	var updatedAtStr string

	err := row.Scan(&state.UserID, &lastRun, &lastSuccess, &state.LastError, &updatedAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.SyncState{}, persistence.ErrNotFound
		}
		return persistence.SyncState{}, mapSQLiteError(err)
	}

	if state.LastRunAt, err = parseNullableTime(lastRun); err != nil {
		return persistence.SyncState{}, fmt.Errorf("failed to parse last_run_at: %w", err)
	}
	if state.LastSuccessAt, err = parseNullableTime(lastSuccess); err != nil {
		return persistence.SyncState{}, fmt.Errorf("failed to parse last_success_at: %w", err)
	}
	if state.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return persistence.SyncState{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return state, nil
}

// UpsertSyncState inserts or replaces the sync bookkeeping record for a user.
func (r *SyncStateRepository) UpsertSyncState(ctx context.Context, state persistence.SyncState) error {
	if state.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO sync_states (user_id, last_run_at, last_success_at, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_success_at = excluded.last_success_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`,
		state.UserID,
		formatNullableTime(state.LastRunAt),
		formatNullableTime(state.LastSuccessAt),
		state.LastError,
		state.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return mapSQLiteError(err)
}

func parseNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func formatNullableTime(value *time.Time) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: value.UTC().Format(time.RFC3339), Valid: true}
}
