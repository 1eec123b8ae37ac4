package persistence

import (
	"context"
	"time"
)

// ScheduleFilter narrows schedule queries.
type ScheduleFilter struct {
	ParticipantIDs []string
	// StartsAfter and EndsBefore select schedules intersecting the range:
	// entries ending after StartsAfter and starting before EndsBefore.
	StartsAfter *time.Time
	EndsBefore  *time.Time
	Origin      *Origin
	ResourceID  string
}

// ScheduleRepository stores schedule entries, their participants, and their
// resource bindings.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) error
	// CreateSchedules inserts a master and its materialized occurrences in
	// one transaction, so a series never exists half-created.
	CreateSchedules(ctx context.Context, schedules []Schedule) error
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	// DeleteSeries removes the master and every occurrence referencing it via
	// OriginalID in a single transaction.
	DeleteSeries(ctx context.Context, masterID string) error
}

// UserRepository exposes the user directory operations the scheduler needs.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	MissingUserIDs(ctx context.Context, ids []string) ([]string, error)
}

// SyncStateRepository stores per-user sync bookkeeping, keyed by user id.
type SyncStateRepository interface {
	GetSyncState(ctx context.Context, userID string) (SyncState, error)
	UpsertSyncState(ctx context.Context, state SyncState) error
}
