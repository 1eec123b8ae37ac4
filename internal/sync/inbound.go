package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/groupware-scheduler/internal/persistence"
)

// matchTolerance is the window within which a remote event and a local
// record are considered the same occurrence when no stored remote id exists.
const matchTolerance = 60 * time.Second

// InboundSyncer pulls remote events into local schedule records. Imported
// records carry origin=external, which makes them ineligible for re-export
// and closes the feedback loop.
type InboundSyncer struct {
	schedules   ScheduleStore
	provider    CalendarAPI
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewInboundSyncer wires dependencies for inbound sync.
func NewInboundSyncer(schedules ScheduleStore, provider CalendarAPI, idGenerator func() string, now func() time.Time, logger *slog.Logger) *InboundSyncer {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &InboundSyncer{
		schedules:   schedules,
		provider:    provider,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// Sync imports the user's remote events intersecting the horizon. When
// detectTombstones is set, local external-origin records whose (title, date)
// key is absent from the current remote fetch are deleted; this is the only
// mechanism reflecting remote deletions since the provider pushes nothing.
// The pass runs only when every remote event parsed, so an event the client
// could not read is never mistaken for a deletion.
func (s *InboundSyncer) Sync(ctx context.Context, userID string, horizon Horizon, detectTombstones bool) (Summary, error) {
	logger := syncLogger(ctx, s.logger, "inbound", "user_id", userID)
	summary := Summary{}

	remote, err := s.provider.ListEvents(ctx, userID, horizon.Start, horizon.End)
	if err != nil {
		return summary, fmt.Errorf("inbound: failed to list remote events: %w", err)
	}

	locals, err := s.schedules.ListSchedules(ctx, persistence.ScheduleFilter{
		ParticipantIDs: []string{userID},
		StartsAfter:    &horizon.Start,
		EndsBefore:     &horizon.End,
	})
	if err != nil {
		return summary, fmt.Errorf("inbound: failed to list local schedules: %w", err)
	}

	byRemoteID := make(map[string]struct{}, len(locals))
	for _, schedule := range locals {
		if schedule.ExternalEventID != nil && *schedule.ExternalEventID != "" {
			byRemoteID[*schedule.ExternalEventID] = struct{}{}
		}
	}

	remoteKeys := make(map[string]struct{}, len(remote))
	unparsed := 0

	for _, event := range remote {
		start, allDay, err := event.Start.Resolve(time.UTC)
		if err != nil {
			summary.Failed++
			unparsed++
			logger.WarnContext(ctx, "remote event has invalid start", "event_id", event.ID, "error", err)
			continue
		}
		end, _, err := event.End.Resolve(time.UTC)
		if err != nil {
			summary.Failed++
			unparsed++
			logger.WarnContext(ctx, "remote event has invalid end", "event_id", event.ID, "error", err)
			continue
		}

		remoteKeys[tombstoneKey(event.Title, start)] = struct{}{}

		if _, ok := byRemoteID[event.ID]; ok {
			summary.Skipped++
			continue
		}
		if matchesHeuristically(locals, event.Title, start, end) {
			summary.Skipped++
			continue
		}

		remoteID := event.ID
		now := s.now()
		record := persistence.Schedule{
			ID:          s.idGenerator(),
			Title:       event.Title,
			Description: event.Description,
			Start:       start,
			End:         end,
			AllDay:      allDay,
			// The provider's attendee list is not reliably mappable to local
			// identities, so only the syncing user is seeded.
			ParticipantIDs:  []string{userID},
			Origin:          persistence.OriginExternal,
			ExternalEventID: &remoteID,
			MeetingMode:     persistence.MeetingModeInPerson,
			Visibility:      persistence.VisibilityPublic,
			CreatedBy:       userID,
			CreatedAt:       now,
			UpdatedBy:       userID,
			UpdatedAt:       now,
		}

		if err := s.schedules.CreateSchedule(ctx, record); err != nil {
			if errors.Is(err, persistence.ErrDuplicate) {
				summary.Skipped++
				continue
			}
			summary.Failed++
			logger.WarnContext(ctx, "failed to import remote event", "event_id", event.ID, "error", err)
			continue
		}
		summary.Added++
	}

	// A remote event that failed to parse never made it into remoteKeys, so
	// its local counterpart would look tombstoned. Deleting on an incomplete
	// key set is worse than deferring one run.
	if detectTombstones && unparsed == 0 {
		deleted, failed := s.removeTombstones(ctx, logger, locals, remoteKeys)
		summary.Deleted += deleted
		summary.Failed += failed
	} else if detectTombstones {
		logger.WarnContext(ctx, "skipping tombstone pass, remote fetch was incomplete", "unparsed", unparsed)
	}

	logger.InfoContext(ctx, "inbound pass finished",
		"added", summary.Added, "skipped", summary.Skipped,
		"deleted", summary.Deleted, "failed", summary.Failed)
	return summary, nil
}

// removeTombstones deletes external-origin records no longer present in the
// remote fetch. Local-origin records are never touched here.
func (s *InboundSyncer) removeTombstones(ctx context.Context, logger *slog.Logger, locals []persistence.Schedule, remoteKeys map[string]struct{}) (deleted, failed int) {
	for _, schedule := range locals {
		if schedule.Origin != persistence.OriginExternal {
			continue
		}
		if _, ok := remoteKeys[tombstoneKey(schedule.Title, schedule.Start)]; ok {
			continue
		}

		if err := s.schedules.DeleteSchedule(ctx, schedule.ID); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			failed++
			logger.WarnContext(ctx, "failed to delete tombstoned schedule",
				"schedule_id", schedule.ID, "error", err)
			continue
		}
		deleted++
		logger.InfoContext(ctx, "deleted schedule no longer present remotely",
			"schedule_id", schedule.ID, "title", schedule.Title)
	}
	return deleted, failed
}

func matchesHeuristically(locals []persistence.Schedule, title string, start, end time.Time) bool {
	normalized := normalizeTitle(title)
	for _, schedule := range locals {
		if normalizeTitle(schedule.Title) != normalized {
			continue
		}
		if absDuration(schedule.Start.Sub(start)) <= matchTolerance &&
			absDuration(schedule.End.Sub(end)) <= matchTolerance {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
