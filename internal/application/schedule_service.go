package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/recurrence"
	"github.com/example/groupware-scheduler/internal/scheduler"
)

// ScheduleStore captures the persistence interactions needed by the service.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, schedule persistence.Schedule) error
	CreateSchedules(ctx context.Context, schedules []persistence.Schedule) error
	UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error
	GetSchedule(ctx context.Context, id string) (persistence.Schedule, error)
	ListSchedules(ctx context.Context, filter persistence.ScheduleFilter) ([]persistence.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	DeleteSeries(ctx context.Context, masterID string) error
}

// UserDirectory exposes user lookup operations.
type UserDirectory interface {
	MissingUserIDs(ctx context.Context, ids []string) ([]string, error)
}

// defaultMaterializeAhead bounds how far into the future occurrences of a
// recurring schedule are materialized at write time.
const defaultMaterializeAhead = 365 * 24 * time.Hour

// ScheduleService orchestrates validation, conflict detection, recurrence
// materialization, and persistence for schedule operations.
type ScheduleService struct {
	schedules        ScheduleStore
	users            UserDirectory
	notifier         NotificationDispatcher
	warnings         *warningCache
	idGenerator      func() string
	now              func() time.Time
	materializeAhead time.Duration
	logger           *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations. notifier may
// be nil when no notification channel is configured.
func NewScheduleService(schedules ScheduleStore, users UserDirectory, notifier NotificationDispatcher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{
		schedules:        schedules,
		users:            users,
		notifier:         notifier,
		warnings:         newWarningCache(0, 0, now),
		idGenerator:      idGenerator,
		now:              now,
		materializeAhead: defaultMaterializeAhead,
		logger:           defaultLogger(logger),
	}
}

// CreateSchedule validates the request, reports conflicts as warnings, and
// persists the schedule. Recurring schedules are materialized as a master
// plus its occurrences in one transaction. Conflicts never block creation.
func (s *ScheduleService) CreateSchedule(ctx context.Context, params CreateScheduleParams) (persistence.Schedule, []ConflictWarning, error) {
	if s == nil || s.schedules == nil {
		return persistence.Schedule{}, nil, fmt.Errorf("schedule service not configured")
	}
	logger := serviceLogger(ctx, s.logger, "schedule", "create", "user_id", params.Principal.UserID)

	input := params.Input
	principal := params.Principal

	if input.CreatorID == "" {
		input.CreatorID = principal.UserID
	}
	if input.CreatorID != principal.UserID && !principal.IsAdmin {
		return persistence.Schedule{}, nil, ErrUnauthorized
	}

	vErr := &ValidationError{}
	validateScheduleCore(input, vErr)
	if vErr.HasErrors() {
		return persistence.Schedule{}, nil, vErr
	}

	if err := s.ensureParticipantsExist(ctx, append(uniqueStrings(input.ParticipantIDs), input.CreatorID)); err != nil {
		return persistence.Schedule{}, nil, err
	}

	master := s.buildSchedule(s.idGenerator(), input)

	warnings, err := s.detectConflicts(ctx, master, "")
	if err != nil {
		return persistence.Schedule{}, nil, err
	}

	records, err := s.materialize(master)
	if err != nil {
		return persistence.Schedule{}, nil, err
	}

	if len(records) > 1 {
		err = s.schedules.CreateSchedules(ctx, records)
	} else {
		err = s.schedules.CreateSchedule(ctx, master)
	}
	if err != nil {
		return persistence.Schedule{}, nil, mapScheduleRepoError(err)
	}

	s.warnings.Invalidate()
	s.notify(ctx, logger, master, ChangeCreated)

	logger.InfoContext(ctx, "schedule created",
		"schedule_id", master.ID, "occurrences", len(records)-1, "conflicts", len(warnings))
	return master, warnings, nil
}

// UpdateSchedule applies validation and authorization before updating
// persistence state. When the recurrence rule or the window of a recurring
// master changes, the series is rematerialized: the old family is removed
// atomically and the new one inserted in a single transaction each.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, params UpdateScheduleParams) (persistence.Schedule, []ConflictWarning, error) {
	if s == nil || s.schedules == nil {
		return persistence.Schedule{}, nil, fmt.Errorf("schedule service not configured")
	}
	logger := serviceLogger(ctx, s.logger, "schedule", "update", "schedule_id", params.ScheduleID)

	existing, err := s.schedules.GetSchedule(ctx, params.ScheduleID)
	if err != nil {
		return persistence.Schedule{}, nil, mapScheduleRepoError(err)
	}

	principal := params.Principal
	input := params.Input

	if existing.CreatedBy != principal.UserID && !principal.IsAdmin {
		return persistence.Schedule{}, nil, ErrUnauthorized
	}

	vErr := &ValidationError{}
	if input.CreatorID != "" && input.CreatorID != existing.CreatedBy {
		vErr.add("creator_id", "creator cannot be changed")
	}
	validateScheduleCore(input, vErr)
	if vErr.HasErrors() {
		return persistence.Schedule{}, nil, vErr
	}

	if err := s.ensureParticipantsExist(ctx, append(uniqueStrings(input.ParticipantIDs), existing.CreatedBy)); err != nil {
		return persistence.Schedule{}, nil, err
	}

	updated := s.buildSchedule(existing.ID, input)
	updated.Origin = existing.Origin
	updated.ExternalEventID = existing.ExternalEventID
	updated.OriginalID = existing.OriginalID
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedBy = principal.UserID
	updated.UpdatedAt = s.now()

	warnings, err := s.detectConflicts(ctx, updated, existing.ID)
	if err != nil {
		return persistence.Schedule{}, nil, err
	}

	if needsRematerialization(existing, updated) {
		if err := s.schedules.DeleteSeries(ctx, existing.ID); err != nil {
			return persistence.Schedule{}, nil, mapScheduleRepoError(err)
		}
		records, err := s.materialize(updated)
		if err != nil {
			return persistence.Schedule{}, nil, err
		}
		if err := s.schedules.CreateSchedules(ctx, records); err != nil {
			return persistence.Schedule{}, nil, mapScheduleRepoError(err)
		}
	} else {
		if err := s.schedules.UpdateSchedule(ctx, updated); err != nil {
			return persistence.Schedule{}, nil, mapScheduleRepoError(err)
		}
	}

	s.warnings.Invalidate()
	s.notify(ctx, logger, updated, ChangeUpdated)

	logger.InfoContext(ctx, "schedule updated", "conflicts", len(warnings))
	return updated, warnings, nil
}

// DeleteSchedule ensures authorization before delegating to persistence. A
// recurrence master takes its whole materialized family with it atomically.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, principal Principal, scheduleID string) error {
	if s == nil || s.schedules == nil {
		return fmt.Errorf("schedule service not configured")
	}
	logger := serviceLogger(ctx, s.logger, "schedule", "delete", "schedule_id", scheduleID)

	existing, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return mapScheduleRepoError(err)
	}
	if existing.CreatedBy != principal.UserID && !principal.IsAdmin {
		return ErrUnauthorized
	}

	if existing.IsMaster() {
		err = s.schedules.DeleteSeries(ctx, scheduleID)
	} else {
		err = s.schedules.DeleteSchedule(ctx, scheduleID)
	}
	if err != nil {
		return mapScheduleRepoError(err)
	}

	s.warnings.Invalidate()
	s.notify(ctx, logger, existing, ChangeDeleted)

	logger.InfoContext(ctx, "schedule deleted", "series", existing.IsMaster())
	return nil
}

// GetSchedule fetches a single schedule by id.
func (s *ScheduleService) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	if s == nil || s.schedules == nil {
		return persistence.Schedule{}, fmt.Errorf("schedule service not configured")
	}
	schedule, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return persistence.Schedule{}, mapScheduleRepoError(err)
	}
	return schedule, nil
}

// ListSchedules enumerates schedules visible to the requesting principal,
// ordered chronologically, with pairwise conflict warnings attached.
func (s *ScheduleService) ListSchedules(ctx context.Context, params ListSchedulesParams) ([]persistence.Schedule, []ConflictWarning, error) {
	if s == nil || s.schedules == nil {
		return nil, nil, fmt.Errorf("schedule service not configured")
	}

	filter := s.buildListFilter(params)

	schedules, err := s.schedules.ListSchedules(ctx, filter)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	ordered := make([]persistence.Schedule, len(schedules))
	copy(ordered, schedules)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Start.Equal(ordered[j].Start) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Start.Before(ordered[j].Start)
	})

	cacheKey := buildWarningCacheKey(params, filter)
	warnings, ok := s.warnings.Get(cacheKey)
	if !ok {
		warnings = detectListConflicts(ordered)
		s.warnings.Store(cacheKey, warnings)
	}

	return ordered, warnings, nil
}

// ExpandOccurrences returns the occurrence windows of the identified schedule
// intersecting the query window. A non-recurring schedule yields its own
// window when it intersects.
func (s *ScheduleService) ExpandOccurrences(ctx context.Context, scheduleID string, query recurrence.Window) ([]recurrence.Window, error) {
	if s == nil || s.schedules == nil {
		return nil, fmt.Errorf("schedule service not configured")
	}

	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, mapScheduleRepoError(err)
	}

	anchor := recurrence.Window{Start: schedule.Start, End: schedule.End}
	if !schedule.IsMaster() {
		if schedule.End.After(query.Start) && schedule.Start.Before(query.End) {
			return []recurrence.Window{anchor}, nil
		}
		return nil, nil
	}

	windows, err := recurrence.Expand(anchor, *schedule.Recurrence, query)
	if err != nil {
		if errors.Is(err, recurrence.ErrEmptyWeekdaySet) {
			vErr := &ValidationError{}
			vErr.add("recurrence", "custom recurrence requires at least one weekday")
			return nil, vErr
		}
		return nil, err
	}
	return windows, nil
}

func (s *ScheduleService) buildSchedule(id string, input ScheduleInput) persistence.Schedule {
	now := s.now()

	meetingMode := input.MeetingMode
	if meetingMode == "" {
		meetingMode = persistence.MeetingModeInPerson
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = persistence.VisibilityPublic
	}

	return persistence.Schedule{
		ID:             id,
		Type:           input.Type,
		Title:          strings.TrimSpace(input.Title),
		Description:    input.Description,
		Start:          input.Start,
		End:            input.End,
		AllDay:         input.AllDay,
		MultiDay:       !truncateToDay(input.Start).Equal(truncateToDay(input.End.Add(-time.Nanosecond))),
		Recurrence:     input.Recurrence,
		ParticipantIDs: sortStrings(uniqueStrings(input.ParticipantIDs)),
		Resources:      append([]scheduler.ResourceBinding(nil), input.Resources...),
		Origin:         persistence.OriginLocal,
		MeetingMode:    meetingMode,
		Visibility:     visibility,
		CreatedBy:      input.CreatorID,
		CreatedAt:      now,
		UpdatedBy:      input.CreatorID,
		UpdatedAt:      now,
	}
}

// materialize expands a recurring master into its occurrence records. The
// first expanded window coincides with the master itself and is not
// duplicated. Non-recurring schedules yield a single-element slice.
func (s *ScheduleService) materialize(master persistence.Schedule) ([]persistence.Schedule, error) {
	records := []persistence.Schedule{master}
	if !master.IsMaster() {
		return records, nil
	}

	anchor := recurrence.Window{Start: master.Start, End: master.End}
	query := recurrence.Window{Start: master.Start, End: master.Start.Add(s.materializeAhead)}

	windows, err := recurrence.Expand(anchor, *master.Recurrence, query)
	if err != nil {
		if errors.Is(err, recurrence.ErrEmptyWeekdaySet) {
			vErr := &ValidationError{}
			vErr.add("recurrence", "custom recurrence requires at least one weekday")
			return nil, vErr
		}
		return nil, err
	}

	masterID := master.ID
	for _, window := range windows {
		if window.Start.Equal(master.Start) {
			continue
		}
		occurrence := master
		occurrence.ID = s.idGenerator()
		occurrence.Start = window.Start
		occurrence.End = window.End
		occurrence.Recurrence = nil
		occurrence.OriginalID = &masterID
		occurrence.ParticipantIDs = append([]string(nil), master.ParticipantIDs...)
		occurrence.Resources = append([]scheduler.ResourceBinding(nil), master.Resources...)
		records = append(records, occurrence)
	}
	return records, nil
}

func (s *ScheduleService) ensureParticipantsExist(ctx context.Context, ids []string) error {
	if s.users == nil {
		return nil
	}
	missing, err := s.users.MissingUserIDs(ctx, uniqueStrings(ids))
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}
	vErr := &ValidationError{}
	vErr.add("participants", fmt.Sprintf("unknown user ids: %s", strings.Join(missing, ", ")))
	return vErr
}

// detectConflicts evaluates the candidate against stored schedules
// intersecting its window. Members of the candidate's own recurrence family
// are excluded so a rematerialization never conflicts with itself.
func (s *ScheduleService) detectConflicts(ctx context.Context, candidate persistence.Schedule, excludeID string) ([]ConflictWarning, error) {
	start := candidate.Start
	end := candidate.End

	stored, err := s.schedules.ListSchedules(ctx, persistence.ScheduleFilter{
		StartsAfter: &start,
		EndsBefore:  &end,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	existing := make([]scheduler.Schedule, 0, len(stored))
	for _, record := range stored {
		if excludeID != "" && record.OriginalID != nil && *record.OriginalID == excludeID {
			continue
		}
		existing = append(existing, toDetectorSchedule(record))
	}

	verdict := scheduler.DetectConflicts(existing, scheduler.Candidate{
		Start:        candidate.Start,
		End:          candidate.End,
		Participants: candidate.ParticipantIDs,
		Resources:    candidate.Resources,
		ExcludeID:    excludeID,
	})
	return toConflictWarnings(verdict), nil
}

func toDetectorSchedule(schedule persistence.Schedule) scheduler.Schedule {
	return scheduler.Schedule{
		ID:           schedule.ID,
		Title:        schedule.Title,
		Participants: append([]string(nil), schedule.ParticipantIDs...),
		Resources:    append([]scheduler.ResourceBinding(nil), schedule.Resources...),
		Start:        schedule.Start,
		End:          schedule.End,
	}
}

func toConflictWarnings(verdict scheduler.Verdict) []ConflictWarning {
	if !verdict.HasConflicts {
		return nil
	}
	warnings := make([]ConflictWarning, 0, len(verdict.Conflicts))
	for _, conflict := range verdict.Conflicts {
		warnings = append(warnings, ConflictWarning{
			ScheduleID: conflict.ID,
			Title:      conflict.Title,
			Start:      conflict.Start,
			End:        conflict.End,
		})
	}
	return warnings
}

func detectListConflicts(schedules []persistence.Schedule) []ConflictWarning {
	if len(schedules) <= 1 {
		return nil
	}

	converted := make([]scheduler.Schedule, len(schedules))
	for i, schedule := range schedules {
		converted[i] = toDetectorSchedule(schedule)
	}

	warnings := make([]ConflictWarning, 0)
	for i, candidate := range schedules {
		if i+1 >= len(schedules) {
			break
		}
		verdict := scheduler.DetectConflicts(converted[i+1:], scheduler.Candidate{
			Start:        candidate.Start,
			End:          candidate.End,
			Participants: candidate.ParticipantIDs,
			Resources:    candidate.Resources,
		})
		warnings = append(warnings, toConflictWarnings(verdict)...)
	}

	if len(warnings) == 0 {
		return nil
	}
	return warnings
}

func (s *ScheduleService) notify(ctx context.Context, logger *slog.Logger, schedule persistence.Schedule, change ChangeType) {
	if s.notifier == nil {
		return
	}
	recipients := append([]string(nil), schedule.ParticipantIDs...)
	if err := s.notifier.Dispatch(ctx, schedule, recipients, change); err != nil {
		logger.WarnContext(ctx, "notification dispatch failed",
			"schedule_id", schedule.ID, "change", string(change), "error", err)
	}
}

func validateScheduleCore(input ScheduleInput, vErr *ValidationError) {
	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}
	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End.IsZero() {
		vErr.add("end", "end is required")
	}
	if !input.Start.IsZero() && !input.End.IsZero() && !input.Start.Before(input.End) {
		vErr.add("time", "start must be before end")
	}
	if len(input.ParticipantIDs) == 0 {
		vErr.add("participants", "at least one participant is required")
	}

	if input.Recurrence != nil && input.Recurrence.Frequency == recurrence.FrequencyCustom && len(input.Recurrence.Weekdays) == 0 {
		vErr.add("recurrence", "custom recurrence requires at least one weekday")
	}
	if input.Recurrence != nil && input.Recurrence.EndCount != nil && input.Recurrence.EndDate != nil {
		vErr.add("recurrence", "end count and end date are mutually exclusive")
	}

	for _, binding := range input.Resources {
		switch binding.ResourceType {
		case scheduler.ResourceTypeRoom, scheduler.ResourceTypeVehicle, scheduler.ResourceTypeSample:
		default:
			vErr.add("resources", fmt.Sprintf("unknown resource type %q", binding.ResourceType))
		}
	}
}

// needsRematerialization reports whether an update invalidates the stored
// occurrence family.
func needsRematerialization(before, after persistence.Schedule) bool {
	if !before.IsMaster() && !after.IsMaster() {
		return false
	}
	if before.IsMaster() != after.IsMaster() {
		return true
	}
	if !before.Start.Equal(after.Start) || !before.End.Equal(after.End) {
		return true
	}
	return !recurrenceEqual(before.Recurrence, after.Recurrence)
}

func recurrenceEqual(left, right *recurrence.Rule) bool {
	if left == nil || right == nil {
		return left == right
	}
	if left.Frequency != right.Frequency || left.Interval != right.Interval {
		return false
	}
	if (left.EndCount == nil) != (right.EndCount == nil) {
		return false
	}
	if left.EndCount != nil && *left.EndCount != *right.EndCount {
		return false
	}
	if (left.EndDate == nil) != (right.EndDate == nil) {
		return false
	}
	if left.EndDate != nil && !left.EndDate.Equal(*right.EndDate) {
		return false
	}
	if len(left.Weekdays) != len(right.Weekdays) {
		return false
	}
	for i := range left.Weekdays {
		if left.Weekdays[i] != right.Weekdays[i] {
			return false
		}
	}
	return true
}

func (s *ScheduleService) buildListFilter(params ListSchedulesParams) persistence.ScheduleFilter {
	participants := make([]string, 0, len(params.ParticipantIDs)+1)
	participants = append(participants, params.ParticipantIDs...)
	if params.Principal.UserID != "" {
		participants = append(participants, params.Principal.UserID)
	}
	participants = sortStrings(uniqueStrings(participants))
	if len(participants) == 0 {
		participants = nil
	}

	startsAfter := params.StartsAfter
	endsBefore := params.EndsBefore

	if params.Period != ListPeriodNone {
		start, end := computePeriodRange(params.Period, params.PeriodReference)
		if startsAfter == nil {
			startsAfter = &start
		}
		if endsBefore == nil {
			endsBefore = &end
		}
	}

	return persistence.ScheduleFilter{
		ParticipantIDs: participants,
		StartsAfter:    startsAfter,
		EndsBefore:     endsBefore,
	}
}

func computePeriodRange(period ListPeriod, reference time.Time) (time.Time, time.Time) {
	switch period {
	case ListPeriodDay:
		start := truncateToDay(reference)
		return start, start.AddDate(0, 0, 1)
	case ListPeriodWeek:
		start := startOfWeek(reference)
		return start, start.AddDate(0, 0, 7)
	case ListPeriodMonth:
		start := truncateToDay(reference)
		start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
		return start, start.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns midnight of the Sunday opening the week containing t.
func startOfWeek(t time.Time) time.Time {
	start := truncateToDay(t)
	return start.AddDate(0, 0, -int(start.Weekday()))
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func sortStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}

func mapScheduleRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("time", "start must be before end")
		return vErr
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("participants", "related records are missing")
		return vErr
	}
	return err
}
