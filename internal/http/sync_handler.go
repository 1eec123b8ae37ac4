package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/groupware-scheduler/internal/ics"
	"github.com/example/groupware-scheduler/internal/sync"
)

type syncRunner interface {
	Run(ctx context.Context, userID string) (sync.RunResult, error)
}

// SyncHandler exposes sync triggering and iCalendar export.
type SyncHandler struct {
	runner    syncRunner
	schedules scheduleService
	responder responder
	now       func() time.Time
	logger    *slog.Logger
}

func NewSyncHandler(runner syncRunner, schedules scheduleService, now func() time.Time, logger *slog.Logger) *SyncHandler {
	if now == nil {
		now = time.Now
	}
	return &SyncHandler{
		runner:    runner,
		schedules: schedules,
		responder: newResponder(logger),
		now:       now,
		logger:    defaultLogger(logger),
	}
}

// Trigger runs one sync cycle for the path user. Runs shed by the cooldown
// report skipped=true with 202; a rejected credential reports 409 so the
// caller knows re-authentication is required.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.runner == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	userID, ok := SyncUserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(userID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidUserID)
		return
	}

	result, err := h.runner.Run(r.Context(), userID)
	if err != nil {
		logger := handlerLogger(r.Context(), h.logger, "sync", "trigger", "user_id", userID)
		logger.ErrorContext(r.Context(), "sync run failed", "error", err)
		h.responder.writeJSON(r.Context(), w, http.StatusInternalServerError,
			errorResponse{Message: "外部カレンダー同期に失敗しました。"})
		return
	}

	payload := syncResultDTO{
		Skipped:     result.Skipped,
		NeedsReauth: result.NeedsReauth,
		Outbound:    toSummaryDTO(result.Outbound, result.OutboundErr),
		Inbound:     toSummaryDTO(result.Inbound, result.InboundErr),
	}

	status := http.StatusOK
	switch {
	case result.NeedsReauth:
		status = http.StatusConflict
		payload.Message = "外部カレンダーの認証が失効しています。再認証してください。"
	case result.Skipped:
		status = http.StatusAccepted
		payload.Message = "前回の同期から十分な時間が経過していないため、今回はスキップしました。"
	}

	h.responder.writeJSON(r.Context(), w, status, payload)
}

// ExportICS renders the caller's schedules as an iCalendar document.
func (h *SyncHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.schedules == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingIdentity)
		return
	}

	params := buildListParams(r.URL.Query(), principal)
	schedules, _, err := h.schedules.ListSchedules(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	document, err := ics.Export(schedules, h.now())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="schedules.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(document)); err != nil {
		logger := handlerLogger(r.Context(), h.logger, "sync", "export_ics")
		logger.ErrorContext(r.Context(), "failed to write ics response", "error", err)
	}
}

type syncResultDTO struct {
	Skipped     bool           `json:"skipped"`
	NeedsReauth bool           `json:"needs_reauth"`
	Message     string         `json:"message,omitempty"`
	Outbound    syncSummaryDTO `json:"outbound"`
	Inbound     syncSummaryDTO `json:"inbound"`
}

type syncSummaryDTO struct {
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
	Deleted int    `json:"deleted"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

func toSummaryDTO(summary sync.Summary, err error) syncSummaryDTO {
	dto := syncSummaryDTO{
		Added:   summary.Added,
		Skipped: summary.Skipped,
		Deleted: summary.Deleted,
		Failed:  summary.Failed,
	}
	if err != nil {
		dto.Error = err.Error()
	}
	return dto
}
