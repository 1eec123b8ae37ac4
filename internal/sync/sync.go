// Package sync reconciles locally authored schedules with the external
// calendar provider in both directions. Outbound pushes local-origin records
// that are not yet represented remotely; inbound imports remote events and
// optionally reflects remote deletions through tombstone detection.
package sync

import (
	"context"
	"strings"
	"time"

	"github.com/example/groupware-scheduler/internal/calendar"
	"github.com/example/groupware-scheduler/internal/persistence"
)

// ScheduleStore is the persistence surface the syncers require.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, schedule persistence.Schedule) error
	ListSchedules(ctx context.Context, filter persistence.ScheduleFilter) ([]persistence.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// UserDirectory resolves participant ids to user records so outbound sync can
// build attendee addresses.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (persistence.User, error)
}

// CalendarAPI is the provider surface the syncers require.
type CalendarAPI interface {
	ListEvents(ctx context.Context, userID string, timeMin, timeMax time.Time) ([]calendar.Event, error)
	CreateEvent(ctx context.Context, userID string, event calendar.Event) (calendar.Event, error)
	DeleteEvent(ctx context.Context, userID, eventID string) error
}

// Horizon bounds the time range considered during one sync pass.
type Horizon struct {
	Start time.Time
	End   time.Time
}

// HorizonAround builds a horizon spanning lookBehind before and lookAhead
// after the reference instant.
func HorizonAround(reference time.Time, lookBehind, lookAhead time.Duration) Horizon {
	return Horizon{
		Start: reference.Add(-lookBehind),
		End:   reference.Add(lookAhead),
	}
}

// Summary aggregates per-item outcomes of a sync pass. Transport errors are
// caught per item and counted rather than aborting the batch.
type Summary struct {
	Added   int
	Skipped int
	Deleted int
	Failed  int
}

// dedupKey is the heuristic identity substitute used when no reliable
// cross-system id mapping exists: normalized title plus the RFC3339 start
// timestamp. Distinct entries sharing title and start collapse into one.
func dedupKey(title string, start time.Time) string {
	return normalizeTitle(title) + "|" + start.UTC().Format(time.RFC3339)
}

// tombstoneKey identifies a remote event for deletion detection: normalized
// title plus the date-only start.
func tombstoneKey(title string, start time.Time) string {
	return normalizeTitle(title) + "|" + start.UTC().Format("2006-01-02")
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
