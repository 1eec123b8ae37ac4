package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/groupware-scheduler/internal/application"
	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/recurrence"
	"github.com/example/groupware-scheduler/internal/scheduler"
)

type scheduleService interface {
	CreateSchedule(ctx context.Context, params application.CreateScheduleParams) (persistence.Schedule, []application.ConflictWarning, error)
	UpdateSchedule(ctx context.Context, params application.UpdateScheduleParams) (persistence.Schedule, []application.ConflictWarning, error)
	DeleteSchedule(ctx context.Context, principal application.Principal, scheduleID string) error
	GetSchedule(ctx context.Context, id string) (persistence.Schedule, error)
	ListSchedules(ctx context.Context, params application.ListSchedulesParams) ([]persistence.Schedule, []application.ConflictWarning, error)
	ExpandOccurrences(ctx context.Context, scheduleID string, query recurrence.Window) ([]recurrence.Window, error)
}

type ScheduleHandler struct {
	service   scheduleService
	responder responder
}

func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, responder: newResponder(logger)}
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingIdentity)
		return
	}

	schedule, warnings, err := h.service.CreateSchedule(r.Context(), application.CreateScheduleParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderSchedule(r.Context(), w, schedule, warnings, http.StatusCreated)
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID, ok := ScheduleIDFromContext(r.Context())
	if !ok || strings.TrimSpace(scheduleID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingIdentity)
		return
	}

	schedule, warnings, err := h.service.UpdateSchedule(r.Context(), application.UpdateScheduleParams{
		Principal:  principal,
		ScheduleID: scheduleID,
		Input:      req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderSchedule(r.Context(), w, schedule, warnings, http.StatusOK)
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID, ok := ScheduleIDFromContext(r.Context())
	if !ok || strings.TrimSpace(scheduleID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingIdentity)
		return
	}

	if err := h.service.DeleteSchedule(r.Context(), principal, scheduleID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID, ok := ScheduleIDFromContext(r.Context())
	if !ok || strings.TrimSpace(scheduleID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	schedule, err := h.service.GetSchedule(r.Context(), scheduleID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderSchedule(r.Context(), w, schedule, nil, http.StatusOK)
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	params := buildListParams(r.URL.Query(), principal)

	schedules, warnings, err := h.service.ListSchedules(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := listSchedulesResponse{
		Schedules: toScheduleDTOs(schedules),
		Warnings:  toWarningDTOs(warnings),
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

// Occurrences expands the identified schedule over the window given by the
// from/to query parameters.
func (h *ScheduleHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	scheduleID, ok := ScheduleIDFromContext(r.Context())
	if !ok || strings.TrimSpace(scheduleID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidScheduleID)
		return
	}

	from := parseTime(r.URL.Query().Get("from"))
	to := parseTime(r.URL.Query().Get("to"))
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTimeRange)
		return
	}

	windows, err := h.service.ExpandOccurrences(r.Context(), scheduleID, recurrence.Window{Start: from, End: to})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, occurrencesResponse{
		ScheduleID:  scheduleID,
		Occurrences: toWindowDTOs(windows),
	})
}

func (h *ScheduleHandler) renderSchedule(ctx context.Context, w http.ResponseWriter, schedule persistence.Schedule, warnings []application.ConflictWarning, status int) {
	payload := scheduleResponse{
		Schedule: toScheduleDTO(schedule),
		Warnings: toWarningDTOs(warnings),
	}
	h.responder.writeJSON(ctx, w, status, payload)
}

type recurrenceDTO struct {
	Frequency string  `json:"frequency"`
	Interval  int     `json:"interval,omitempty"`
	EndCount  *int    `json:"end_count,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
	Weekdays  []int   `json:"weekdays,omitempty"`
}

func (r *recurrenceDTO) toRule() *recurrence.Rule {
	if r == nil {
		return nil
	}
	rule := &recurrence.Rule{
		Frequency: recurrence.Frequency(r.Frequency),
		Interval:  r.Interval,
		EndCount:  r.EndCount,
	}
	if r.EndDate != nil {
		if ts := parseTime(*r.EndDate); !ts.IsZero() {
			rule.EndDate = &ts
		}
	}
	for _, day := range r.Weekdays {
		rule.Weekdays = append(rule.Weekdays, time.Weekday(day))
	}
	return rule
}

func toRecurrenceDTO(rule *recurrence.Rule) *recurrenceDTO {
	if rule == nil {
		return nil
	}
	dto := &recurrenceDTO{
		Frequency: string(rule.Frequency),
		Interval:  rule.Interval,
		EndCount:  rule.EndCount,
	}
	if rule.EndDate != nil {
		value := rule.EndDate.UTC().Format(time.RFC3339)
		dto.EndDate = &value
	}
	for _, day := range rule.Weekdays {
		dto.Weekdays = append(dto.Weekdays, int(day))
	}
	return dto
}

type resourceDTO struct {
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
}

type scheduleRequest struct {
	CreatorID      string         `json:"creator_id"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Start          string         `json:"start"`
	End            string         `json:"end"`
	AllDay         bool           `json:"all_day"`
	Recurrence     *recurrenceDTO `json:"recurrence"`
	ParticipantIDs []string       `json:"participant_ids"`
	Resources      []resourceDTO  `json:"resources"`
	MeetingMode    string         `json:"meeting_mode"`
	Visibility     string         `json:"visibility"`
}

func (r scheduleRequest) toInput() application.ScheduleInput {
	input := application.ScheduleInput{
		CreatorID:      strings.TrimSpace(r.CreatorID),
		Type:           strings.TrimSpace(r.Type),
		Title:          strings.TrimSpace(r.Title),
		Description:    r.Description,
		Start:          parseTime(r.Start),
		End:            parseTime(r.End),
		AllDay:         r.AllDay,
		Recurrence:     r.Recurrence.toRule(),
		ParticipantIDs: append([]string(nil), r.ParticipantIDs...),
		MeetingMode:    persistence.MeetingMode(strings.TrimSpace(r.MeetingMode)),
		Visibility:     persistence.Visibility(strings.TrimSpace(r.Visibility)),
	}
	for _, resource := range r.Resources {
		input.Resources = append(input.Resources, scheduler.ResourceBinding{
			ResourceID:   strings.TrimSpace(resource.ResourceID),
			ResourceType: scheduler.ResourceType(strings.TrimSpace(resource.ResourceType)),
		})
	}
	return input
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return time.Time{}
}

type scheduleResponse struct {
	Schedule scheduleDTO          `json:"schedule"`
	Warnings []conflictWarningDTO `json:"warnings,omitempty"`
}

type listSchedulesResponse struct {
	Schedules []scheduleDTO        `json:"schedules"`
	Warnings  []conflictWarningDTO `json:"warnings,omitempty"`
}

type occurrencesResponse struct {
	ScheduleID  string      `json:"schedule_id"`
	Occurrences []windowDTO `json:"occurrences"`
}

type windowDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func toWindowDTOs(windows []recurrence.Window) []windowDTO {
	if len(windows) == 0 {
		return nil
	}
	out := make([]windowDTO, 0, len(windows))
	for _, window := range windows {
		out = append(out, windowDTO{
			Start: window.Start.UTC().Format(time.RFC3339Nano),
			End:   window.End.UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}

type scheduleDTO struct {
	ID              string         `json:"id"`
	Type            string         `json:"type,omitempty"`
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	Start           string         `json:"start"`
	End             string         `json:"end"`
	AllDay          bool           `json:"all_day,omitempty"`
	MultiDay        bool           `json:"multi_day,omitempty"`
	Recurrence      *recurrenceDTO `json:"recurrence,omitempty"`
	ParticipantIDs  []string       `json:"participant_ids"`
	Resources       []resourceDTO  `json:"resources,omitempty"`
	Origin          string         `json:"origin"`
	ExternalEventID *string        `json:"external_event_id,omitempty"`
	OriginalID      *string        `json:"original_id,omitempty"`
	MeetingMode     string         `json:"meeting_mode,omitempty"`
	Visibility      string         `json:"visibility,omitempty"`
	CreatedBy       string         `json:"created_by"`
	CreatedAt       string         `json:"created_at"`
	UpdatedBy       string         `json:"updated_by,omitempty"`
	UpdatedAt       string         `json:"updated_at"`
}

func toScheduleDTO(schedule persistence.Schedule) scheduleDTO {
	dto := scheduleDTO{
		ID:              schedule.ID,
		Type:            schedule.Type,
		Title:           schedule.Title,
		Description:     schedule.Description,
		Start:           schedule.Start.UTC().Format(time.RFC3339Nano),
		End:             schedule.End.UTC().Format(time.RFC3339Nano),
		AllDay:          schedule.AllDay,
		MultiDay:        schedule.MultiDay,
		Recurrence:      toRecurrenceDTO(schedule.Recurrence),
		ParticipantIDs:  append([]string(nil), schedule.ParticipantIDs...),
		Origin:          string(schedule.Origin),
		ExternalEventID: schedule.ExternalEventID,
		OriginalID:      schedule.OriginalID,
		MeetingMode:     string(schedule.MeetingMode),
		Visibility:      string(schedule.Visibility),
		CreatedBy:       schedule.CreatedBy,
		CreatedAt:       schedule.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedBy:       schedule.UpdatedBy,
		UpdatedAt:       schedule.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, binding := range schedule.Resources {
		dto.Resources = append(dto.Resources, resourceDTO{
			ResourceID:   binding.ResourceID,
			ResourceType: string(binding.ResourceType),
		})
	}
	return dto
}

func toScheduleDTOs(schedules []persistence.Schedule) []scheduleDTO {
	if len(schedules) == 0 {
		return nil
	}
	out := make([]scheduleDTO, 0, len(schedules))
	for _, schedule := range schedules {
		out = append(out, toScheduleDTO(schedule))
	}
	return out
}

type conflictWarningDTO struct {
	ScheduleID string `json:"schedule_id"`
	Title      string `json:"title,omitempty"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

func toWarningDTOs(warnings []application.ConflictWarning) []conflictWarningDTO {
	if len(warnings) == 0 {
		return nil
	}

	out := make([]conflictWarningDTO, 0, len(warnings))
	for _, warning := range warnings {
		out = append(out, conflictWarningDTO{
			ScheduleID: warning.ScheduleID,
			Title:      warning.Title,
			Start:      warning.Start.UTC().Format(time.RFC3339Nano),
			End:        warning.End.UTC().Format(time.RFC3339Nano),
		})
	}
	return out
}

func buildListParams(values url.Values, principal application.Principal) application.ListSchedulesParams {
	params := application.ListSchedulesParams{Principal: principal}

	if participants := strings.TrimSpace(values.Get("participants")); participants != "" {
		params.ParticipantIDs = parseCSV(participants)
	}

	if after := strings.TrimSpace(values.Get("starts_after")); after != "" {
		if ts := parseTime(after); !ts.IsZero() {
			params.StartsAfter = &ts
		}
	}

	if before := strings.TrimSpace(values.Get("ends_before")); before != "" {
		if ts := parseTime(before); !ts.IsZero() {
			params.EndsBefore = &ts
		}
	}

	if day := strings.TrimSpace(values.Get("day")); day != "" {
		if ts, err := time.Parse("2006-01-02", day); err == nil {
			params.Period = application.ListPeriodDay
			params.PeriodReference = ts
		}
	} else if week := strings.TrimSpace(values.Get("week")); week != "" {
		if ts, err := time.Parse("2006-01-02", week); err == nil {
			params.Period = application.ListPeriodWeek
			params.PeriodReference = ts
		}
	} else if month := strings.TrimSpace(values.Get("month")); month != "" {
		if ts, err := time.Parse("2006-01", month); err == nil {
			params.Period = application.ListPeriodMonth
			params.PeriodReference = ts
		}
	}

	return params
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
