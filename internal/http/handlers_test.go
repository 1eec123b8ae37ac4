package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/groupware-scheduler/internal/application"
	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/recurrence"
	"github.com/example/groupware-scheduler/internal/sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type stubScheduleService struct {
	createdWith *application.CreateScheduleParams
	updatedWith *application.UpdateScheduleParams
	deletedID   string
	listParams  *application.ListSchedulesParams
	expandedID  string

	schedule persistence.Schedule
	warnings []application.ConflictWarning
	list     []persistence.Schedule
	windows  []recurrence.Window
	err      error
}

func (s *stubScheduleService) CreateSchedule(_ context.Context, params application.CreateScheduleParams) (persistence.Schedule, []application.ConflictWarning, error) {
	s.createdWith = &params
	return s.schedule, s.warnings, s.err
}

func (s *stubScheduleService) UpdateSchedule(_ context.Context, params application.UpdateScheduleParams) (persistence.Schedule, []application.ConflictWarning, error) {
	s.updatedWith = &params
	return s.schedule, s.warnings, s.err
}

func (s *stubScheduleService) DeleteSchedule(_ context.Context, _ application.Principal, scheduleID string) error {
	s.deletedID = scheduleID
	return s.err
}

func (s *stubScheduleService) GetSchedule(_ context.Context, _ string) (persistence.Schedule, error) {
	return s.schedule, s.err
}

func (s *stubScheduleService) ListSchedules(_ context.Context, params application.ListSchedulesParams) ([]persistence.Schedule, []application.ConflictWarning, error) {
	s.listParams = &params
	return s.list, s.warnings, s.err
}

func (s *stubScheduleService) ExpandOccurrences(_ context.Context, scheduleID string, _ recurrence.Window) ([]recurrence.Window, error) {
	s.expandedID = scheduleID
	return s.windows, s.err
}

type stubRunner struct {
	userID string
	result sync.RunResult
	err    error
}

func (s *stubRunner) Run(_ context.Context, userID string) (sync.RunResult, error) {
	s.userID = userID
	return s.result, s.err
}

func newTestRouter(service *stubScheduleService, runner *stubRunner) http.Handler {
	logger := discardLogger()
	now := func() time.Time { return time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC) }
	return NewRouter(RouterConfig{
		Schedules:  NewScheduleHandler(service, logger),
		Sync:       NewSyncHandler(runner, service, now, logger),
		Middleware: []func(http.Handler) http.Handler{Identity()},
	})
}

func sampleSchedule() persistence.Schedule {
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	return persistence.Schedule{
		ID:             "sched-1",
		Title:          "定例ミーティング",
		Start:          start,
		End:            start.Add(time.Hour),
		ParticipantIDs: []string{"user-1"},
		Origin:         persistence.OriginLocal,
		MeetingMode:    persistence.MeetingModeInPerson,
		Visibility:     persistence.VisibilityPublic,
		CreatedBy:      "user-1",
		CreatedAt:      start.Add(-24 * time.Hour),
		UpdatedAt:      start.Add(-24 * time.Hour),
	}
}

func TestScheduleHandlerCreate(t *testing.T) {
	t.Parallel()

	t.Run("creates a schedule and returns warnings", func(t *testing.T) {
		t.Parallel()

		service := &stubScheduleService{
			schedule: sampleSchedule(),
			warnings: []application.ConflictWarning{{
				ScheduleID: "sched-9",
				Title:      "他の予定",
				Start:      time.Date(2025, time.June, 2, 10, 30, 0, 0, time.UTC),
				End:        time.Date(2025, time.June, 2, 11, 30, 0, 0, time.UTC),
			}},
		}
		router := newTestRouter(service, &stubRunner{})

		body := `{"creator_id":"user-1","title":"定例ミーティング","start":"2025-06-02T10:00:00Z","end":"2025-06-02T11:00:00Z","participant_ids":["user-1"]}`
		req := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader(body))
		req.Header.Set("X-User-ID", "user-1")
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if service.createdWith == nil {
			t.Fatal("expected service to receive create params")
		}
		if service.createdWith.Principal.UserID != "user-1" {
			t.Fatalf("unexpected principal: %+v", service.createdWith.Principal)
		}

		var response scheduleResponse
		if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Schedule.ID != "sched-1" {
			t.Fatalf("unexpected schedule id %q", response.Schedule.ID)
		}
		if len(response.Warnings) != 1 || response.Warnings[0].ScheduleID != "sched-9" {
			t.Fatalf("unexpected warnings %+v", response.Warnings)
		}
	})

	t.Run("rejects requests without identity", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubScheduleService{}, &stubRunner{})

		req := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader(`{}`))
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", recorder.Code)
		}
		if !strings.Contains(recorder.Body.String(), "呼び出し元ユーザーを特定できません。") {
			t.Fatalf("expected localized message, got %s", recorder.Body.String())
		}
	})

	t.Run("rejects malformed request bodies", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubScheduleService{}, &stubRunner{})

		req := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader("{not json"))
		req.Header.Set("X-User-ID", "user-1")
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", recorder.Code)
		}
	})
}

func TestScheduleHandlerErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "unauthorized maps to 403",
			err:            application.ErrUnauthorized,
			expectedStatus: http.StatusForbidden,
			expectedBody:   "この操作を実行する権限がありません。",
		},
		{
			name:           "not found maps to 404",
			err:            application.ErrNotFound,
			expectedStatus: http.StatusNotFound,
			expectedBody:   "指定されたリソースが見つかりません。",
		},
		{
			name:           "already exists maps to 409",
			err:            application.ErrAlreadyExists,
			expectedStatus: http.StatusConflict,
			expectedBody:   "要求はリソースの現在の状態と競合しています。",
		},
		{
			name:           "unexpected errors map to 500",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "サーバー内部でエラーが発生しました。",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			service := &stubScheduleService{err: tc.err}
			router := newTestRouter(service, &stubRunner{})

			req := httptest.NewRequest(http.MethodGet, "/schedules/sched-1", nil)
			req.Header.Set("X-User-ID", "user-1")
			recorder := httptest.NewRecorder()

			router.ServeHTTP(recorder, req)

			if recorder.Code != tc.expectedStatus {
				t.Fatalf("expected %d, got %d", tc.expectedStatus, recorder.Code)
			}
			if !strings.Contains(recorder.Body.String(), tc.expectedBody) {
				t.Fatalf("expected body to contain %q, got %s", tc.expectedBody, recorder.Body.String())
			}
		})
	}

	t.Run("validation errors map to 422 with localized fields", func(t *testing.T) {
		t.Parallel()

		vErr := &application.ValidationError{FieldErrors: map[string]string{
			"title":      "title is required",
			"recurrence": "custom recurrence requires at least one weekday",
		}}
		service := &stubScheduleService{err: vErr}
		router := newTestRouter(service, &stubRunner{})

		body := `{"creator_id":"user-1","participant_ids":["user-1"]}`
		req := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader(body))
		req.Header.Set("X-User-ID", "user-1")
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", recorder.Code)
		}

		var response errorResponse
		if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Errors["title"] != "タイトルは必須です。" {
			t.Fatalf("unexpected title message %q", response.Errors["title"])
		}
		if response.Errors["recurrence"] != "カスタム繰り返しには曜日を 1 つ以上指定してください。" {
			t.Fatalf("unexpected recurrence message %q", response.Errors["recurrence"])
		}
	})
}

func TestScheduleHandlerList(t *testing.T) {
	t.Parallel()

	t.Run("maps query parameters to list params", func(t *testing.T) {
		t.Parallel()

		service := &stubScheduleService{}
		router := newTestRouter(service, &stubRunner{})

		req := httptest.NewRequest(http.MethodGet, "/schedules?participants=user-2,user-3&week=2025-06-04", nil)
		req.Header.Set("X-User-ID", "user-1")
		req.Header.Set("X-Admin", "true")
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
		if service.listParams == nil {
			t.Fatal("expected list params to be captured")
		}
		if !service.listParams.Principal.IsAdmin {
			t.Fatal("expected admin principal")
		}
		if len(service.listParams.ParticipantIDs) != 2 || service.listParams.ParticipantIDs[0] != "user-2" {
			t.Fatalf("unexpected participants %v", service.listParams.ParticipantIDs)
		}
		if service.listParams.Period != application.ListPeriodWeek {
			t.Fatalf("unexpected period %q", service.listParams.Period)
		}
		if got := service.listParams.PeriodReference; !got.Equal(time.Date(2025, time.June, 4, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected period reference %v", got)
		}
	})

	t.Run("returns schedules and warnings", func(t *testing.T) {
		t.Parallel()

		service := &stubScheduleService{
			list: []persistence.Schedule{sampleSchedule()},
			warnings: []application.ConflictWarning{{
				ScheduleID: "sched-2",
				Start:      time.Date(2025, time.June, 2, 10, 30, 0, 0, time.UTC),
				End:        time.Date(2025, time.June, 2, 11, 0, 0, 0, time.UTC),
			}},
		}
		router := newTestRouter(service, &stubRunner{})

		req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
		req.Header.Set("X-User-ID", "user-1")
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		var response listSchedulesResponse
		if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(response.Schedules) != 1 || response.Schedules[0].ID != "sched-1" {
			t.Fatalf("unexpected schedules %+v", response.Schedules)
		}
		if len(response.Warnings) != 1 {
			t.Fatalf("unexpected warnings %+v", response.Warnings)
		}
	})
}

func TestScheduleHandlerOccurrences(t *testing.T) {
	t.Parallel()

	t.Run("expands the schedule over the requested window", func(t *testing.T) {
		t.Parallel()

		start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
		service := &stubScheduleService{
			windows: []recurrence.Window{
				{Start: start, End: start.Add(time.Hour)},
				{Start: start.AddDate(0, 0, 7), End: start.AddDate(0, 0, 7).Add(time.Hour)},
			},
		}
		router := newTestRouter(service, &stubRunner{})

		req := httptest.NewRequest(http.MethodGet, "/schedules/sched-1/occurrences?from=2025-06-01T00:00:00Z&to=2025-07-01T00:00:00Z", nil)
		req.Header.Set("X-User-ID", "user-1")
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if service.expandedID != "sched-1" {
			t.Fatalf("unexpected schedule id %q", service.expandedID)
		}

		var response occurrencesResponse
		if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(response.Occurrences) != 2 {
			t.Fatalf("expected 2 occurrences, got %d", len(response.Occurrences))
		}
	})

	t.Run("rejects missing or inverted windows", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubScheduleService{}, &stubRunner{})

		req := httptest.NewRequest(http.MethodGet, "/schedules/sched-1/occurrences?from=2025-07-01T00:00:00Z&to=2025-06-01T00:00:00Z", nil)
		req.Header.Set("X-User-ID", "user-1")
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", recorder.Code)
		}
	})
}

func TestScheduleHandlerDelete(t *testing.T) {
	t.Parallel()

	t.Run("deletes by path id", func(t *testing.T) {
		t.Parallel()

		service := &stubScheduleService{}
		router := newTestRouter(service, &stubRunner{})

		req := httptest.NewRequest(http.MethodDelete, "/schedules/sched-1", nil)
		req.Header.Set("X-User-ID", "user-1")
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", recorder.Code)
		}
		if service.deletedID != "sched-1" {
			t.Fatalf("unexpected deleted id %q", service.deletedID)
		}
	})

	t.Run("rejects unsupported methods", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubScheduleService{}, &stubRunner{})

		req := httptest.NewRequest(http.MethodPatch, "/schedules/sched-1", nil)
		req.Header.Set("X-User-ID", "user-1")
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", recorder.Code)
		}
		if allow := recorder.Header().Get("Allow"); !strings.Contains(allow, http.MethodDelete) {
			t.Fatalf("unexpected Allow header %q", allow)
		}
	})
}

func TestSyncHandlerTrigger(t *testing.T) {
	t.Parallel()

	t.Run("runs sync for the path user", func(t *testing.T) {
		t.Parallel()

		runner := &stubRunner{result: sync.RunResult{
			Outbound: sync.Summary{Added: 2, Skipped: 1},
			Inbound:  sync.Summary{Added: 3},
		}}
		router := newTestRouter(&stubScheduleService{}, runner)

		req := httptest.NewRequest(http.MethodPost, "/sync/user-1", nil)
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if runner.userID != "user-1" {
			t.Fatalf("unexpected user id %q", runner.userID)
		}

		var response syncResultDTO
		if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Outbound.Added != 2 || response.Inbound.Added != 3 {
			t.Fatalf("unexpected summaries %+v", response)
		}
	})

	t.Run("reports cooldown skips with 202", func(t *testing.T) {
		t.Parallel()

		runner := &stubRunner{result: sync.RunResult{Skipped: true}}
		router := newTestRouter(&stubScheduleService{}, runner)

		req := httptest.NewRequest(http.MethodPost, "/sync/user-1", nil)
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", recorder.Code)
		}
	})

	t.Run("reports expired credentials with 409", func(t *testing.T) {
		t.Parallel()

		runner := &stubRunner{result: sync.RunResult{NeedsReauth: true}}
		router := newTestRouter(&stubScheduleService{}, runner)

		req := httptest.NewRequest(http.MethodPost, "/sync/user-1", nil)
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", recorder.Code)
		}
		if !strings.Contains(recorder.Body.String(), "再認証") {
			t.Fatalf("expected reauth message, got %s", recorder.Body.String())
		}
	})

	t.Run("rejects GET requests", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubScheduleService{}, &stubRunner{})

		req := httptest.NewRequest(http.MethodGet, "/sync/user-1", nil)
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", recorder.Code)
		}
	})
}

func TestSyncHandlerExportICS(t *testing.T) {
	t.Parallel()

	t.Run("renders the caller's schedules as icalendar", func(t *testing.T) {
		t.Parallel()

		service := &stubScheduleService{list: []persistence.Schedule{sampleSchedule()}}
		router := newTestRouter(service, &stubRunner{})

		req := httptest.NewRequest(http.MethodGet, "/calendar.ics", nil)
		req.Header.Set("X-User-ID", "user-1")
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if got := recorder.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/calendar") {
			t.Fatalf("unexpected content type %q", got)
		}
		body := recorder.Body.String()
		if !strings.Contains(body, "BEGIN:VCALENDAR") || !strings.Contains(body, "SUMMARY:定例ミーティング") {
			t.Fatalf("unexpected ics body:\n%s", body)
		}
	})

	t.Run("requires identity", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&stubScheduleService{}, &stubRunner{})

		req := httptest.NewRequest(http.MethodGet, "/calendar.ics", nil)
		recorder := httptest.NewRecorder()

		router.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", recorder.Code)
		}
	})
}

func TestIdentityMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("attaches the asserted identity to context", func(t *testing.T) {
		t.Parallel()

		var captured application.Principal
		var found bool
		handler := Identity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured, found = PrincipalFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
		req.Header.Set("X-User-ID", "user-7")
		req.Header.Set("X-Admin", "TRUE")
		recorder := httptest.NewRecorder()

		handler.ServeHTTP(recorder, req)

		if !found {
			t.Fatal("expected principal in context")
		}
		if captured.UserID != "user-7" || !captured.IsAdmin {
			t.Fatalf("unexpected principal %+v", captured)
		}
	})

	t.Run("passes anonymous requests through", func(t *testing.T) {
		t.Parallel()

		handler := Identity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFromContext(r.Context()); ok {
				t.Fatal("expected no principal for anonymous request")
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
		recorder := httptest.NewRecorder()

		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", recorder.Code)
		}
	})
}
