package http

import (
	"context"

	"github.com/example/groupware-scheduler/internal/application"
)

type contextKey string

const (
	principalContextKey  contextKey = "principal"
	scheduleIDContextKey contextKey = "schedule_id"
	syncUserIDContextKey contextKey = "sync_user_id"
)

// ContextWithPrincipal returns a derived context containing the caller identity.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the caller identity from context if available.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}

// ContextWithScheduleID injects the schedule identifier resolved from the request path.
func ContextWithScheduleID(ctx context.Context, scheduleID string) context.Context {
	return context.WithValue(ctx, scheduleIDContextKey, scheduleID)
}

// ScheduleIDFromContext extracts a schedule identifier previously associated with the context.
func ScheduleIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(scheduleIDContextKey).(string)
	return id, ok
}

// ContextWithSyncUserID injects the sync target user resolved from the request path.
func ContextWithSyncUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, syncUserIDContextKey, userID)
}

// SyncUserIDFromContext extracts the sync target user from the context.
func SyncUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(syncUserIDContextKey).(string)
	return id, ok
}
