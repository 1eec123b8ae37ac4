package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/groupware-scheduler/internal/calendar"
	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/scheduler"
)

// OutboundSyncer pushes local-origin schedules into the external provider.
// Deduplication is heuristic: an event is considered already exported when
// the remote window holds an event with the same normalized title and start.
type OutboundSyncer struct {
	schedules   ScheduleStore
	users       UserDirectory
	provider    CalendarAPI
	idGenerator func() string
	retry       retryPolicy
	logger      *slog.Logger
}

// NewOutboundSyncer wires dependencies for outbound sync. idGenerator feeds
// conferencing request ids for online meetings.
func NewOutboundSyncer(schedules ScheduleStore, users UserDirectory, provider CalendarAPI, idGenerator func() string, logger *slog.Logger) *OutboundSyncer {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	return &OutboundSyncer{
		schedules:   schedules,
		users:       users,
		provider:    provider,
		idGenerator: idGenerator,
		retry:       defaultRetryPolicy(),
		logger:      defaultLogger(logger),
	}
}

// Sync exports the user's local-origin schedules intersecting the horizon
// that are not yet represented remotely. Credential failures abort the pass;
// rate limiting is retried per item and counted as failed after exhaustion.
func (s *OutboundSyncer) Sync(ctx context.Context, userID string, horizon Horizon) (Summary, error) {
	logger := syncLogger(ctx, s.logger, "outbound", "user_id", userID)
	summary := Summary{}

	remote, err := s.provider.ListEvents(ctx, userID, horizon.Start, horizon.End)
	if err != nil {
		return summary, fmt.Errorf("outbound: failed to list remote events: %w", err)
	}

	exported := make(map[string]struct{}, len(remote))
	for _, event := range remote {
		start, _, err := event.Start.Resolve(time.UTC)
		if err != nil {
			continue
		}
		exported[dedupKey(event.Title, start)] = struct{}{}
	}

	locals, err := s.schedules.ListSchedules(ctx, persistence.ScheduleFilter{
		ParticipantIDs: []string{userID},
		StartsAfter:    &horizon.Start,
		EndsBefore:     &horizon.End,
	})
	if err != nil {
		return summary, fmt.Errorf("outbound: failed to list local schedules: %w", err)
	}

	for _, schedule := range locals {
		// Records imported from the provider must never be re-exported.
		if schedule.Origin == persistence.OriginExternal {
			summary.Skipped++
			continue
		}
		if _, ok := exported[dedupKey(schedule.Title, schedule.Start)]; ok {
			summary.Skipped++
			continue
		}

		event := s.translate(ctx, schedule)

		err := s.retry.do(ctx, func() error {
			_, createErr := s.provider.CreateEvent(ctx, userID, event)
			return createErr
		})
		if err != nil {
			if errors.Is(err, calendar.ErrAuthExpired) || errors.Is(err, calendar.ErrNoValidToken) {
				return summary, fmt.Errorf("outbound: credential rejected: %w", err)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			summary.Failed++
			logger.WarnContext(ctx, "failed to export schedule",
				"schedule_id", schedule.ID, "error", err)
			continue
		}

		exported[dedupKey(schedule.Title, schedule.Start)] = struct{}{}
		summary.Added++
	}

	logger.InfoContext(ctx, "outbound pass finished",
		"added", summary.Added, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

// translate converts a local schedule into the provider's event shape.
func (s *OutboundSyncer) translate(ctx context.Context, schedule persistence.Schedule) calendar.Event {
	event := calendar.Event{
		Title:       schedule.Title,
		Description: schedule.Description,
	}

	if schedule.AllDay {
		event.Start = calendar.AllDay(schedule.Start)
		event.End = calendar.AllDay(schedule.End)
	} else {
		event.Start = calendar.Timed(schedule.Start)
		event.End = calendar.Timed(schedule.End)
	}

	for _, participantID := range schedule.ParticipantIDs {
		user, err := s.users.GetUser(ctx, participantID)
		if err != nil || user.Email == "" {
			continue
		}
		event.Attendees = append(event.Attendees, calendar.Attendee{Email: user.Email})
	}

	var rooms []string
	for _, binding := range schedule.Resources {
		if binding.ResourceType == scheduler.ResourceTypeRoom {
			rooms = append(rooms, binding.ResourceID)
		}
	}
	event.Location = strings.Join(rooms, ", ")

	if schedule.MeetingMode == persistence.MeetingModeOnline {
		event.ConferenceRequest = &calendar.ConferenceRequest{RequestID: s.idGenerator()}
	}

	return event
}
