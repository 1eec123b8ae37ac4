package application

import (
	"context"
	"time"

	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/recurrence"
	"github.com/example/groupware-scheduler/internal/scheduler"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID  string
	IsAdmin bool
}

// ScheduleInput captures caller provided schedule fields.
type ScheduleInput struct {
	CreatorID      string
	Type           string
	Title          string
	Description    string
	Start          time.Time
	End            time.Time
	AllDay         bool
	Recurrence     *recurrence.Rule
	ParticipantIDs []string
	Resources      []scheduler.ResourceBinding
	MeetingMode    persistence.MeetingMode
	Visibility     persistence.Visibility
}

// ConflictWarning describes a scheduling conflict that should be surfaced to
// callers. Warnings never block the operation; the caller decides whether to
// proceed.
type ConflictWarning struct {
	ScheduleID string
	Title      string
	Start      time.Time
	End        time.Time
}

// CreateScheduleParams wraps the data required to create a schedule.
type CreateScheduleParams struct {
	Principal Principal
	Input     ScheduleInput
}

// UpdateScheduleParams wraps the data required to update an existing schedule.
type UpdateScheduleParams struct {
	Principal  Principal
	ScheduleID string
	Input      ScheduleInput
}

// ListPeriod identifies the range preset requested for schedule listings.
type ListPeriod string

const (
	// ListPeriodNone indicates no preset; caller supplied explicit bounds.
	ListPeriodNone ListPeriod = ""
	// ListPeriodDay constrains results to a single day.
	ListPeriodDay ListPeriod = "day"
	// ListPeriodWeek constrains results to the Sunday-start week containing the reference time.
	ListPeriodWeek ListPeriod = "week"
	// ListPeriodMonth constrains results to the month containing the reference time.
	ListPeriodMonth ListPeriod = "month"
)

// ListSchedulesParams wraps the data required to list schedules.
type ListSchedulesParams struct {
	Principal       Principal
	ParticipantIDs  []string
	StartsAfter     *time.Time
	EndsBefore      *time.Time
	Period          ListPeriod
	PeriodReference time.Time
}

// ChangeType labels the mutation a notification describes.
type ChangeType string

const (
	// ChangeCreated marks a newly created schedule.
	ChangeCreated ChangeType = "created"
	// ChangeUpdated marks a modified schedule.
	ChangeUpdated ChangeType = "updated"
	// ChangeDeleted marks a removed schedule.
	ChangeDeleted ChangeType = "deleted"
	// ChangeReminder marks an upcoming-schedule reminder.
	ChangeReminder ChangeType = "reminder"
)

// NotificationDispatcher receives a schedule, its recipients, and the change
// type. The service decides whether and to whom a notification goes; delivery
// is entirely the dispatcher's concern.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, schedule persistence.Schedule, recipientIDs []string, change ChangeType) error
}
