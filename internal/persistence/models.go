package persistence

import (
	"time"

	"github.com/example/groupware-scheduler/internal/recurrence"
	"github.com/example/groupware-scheduler/internal/scheduler"
)

// Origin marks who authored a schedule record.
type Origin string

const (
	// OriginLocal marks a record created through this system.
	OriginLocal Origin = "local"
	// OriginExternal marks a record imported from the external calendar
	// provider. External records are never selected for re-export.
	OriginExternal Origin = "external"
)

// Visibility controls who may see a schedule.
type Visibility string

const (
	// VisibilityPublic makes the schedule visible to everyone.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate restricts the schedule to its participants.
	VisibilityPrivate Visibility = "private"
)

// MeetingMode distinguishes in-person meetings from online ones. Online
// schedules request conferencing when exported to the provider.
type MeetingMode string

const (
	// MeetingModeInPerson is the default meeting mode.
	MeetingModeInPerson MeetingMode = "in_person"
	// MeetingModeOnline marks a meeting held over web conferencing.
	MeetingModeOnline MeetingMode = "online"
)

// Schedule represents a calendar entry stored in persistence.
//
// A record with a non-nil Recurrence is a series master and never carries an
// OriginalID. A materialized occurrence carries OriginalID pointing at its
// master and has Recurrence set to nil.
type Schedule struct {
	ID              string
	Type            string
	Title           string
	Description     string
	Start           time.Time
	End             time.Time
	AllDay          bool
	MultiDay        bool
	Recurrence      *recurrence.Rule
	ParticipantIDs  []string
	Resources       []scheduler.ResourceBinding
	Origin          Origin
	ExternalEventID *string
	OriginalID      *string
	MeetingMode     MeetingMode
	Visibility      Visibility
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedBy       string
	UpdatedAt       time.Time
}

// IsMaster reports whether the schedule heads a recurrence series.
func (s Schedule) IsMaster() bool {
	return s.Recurrence != nil && s.Recurrence.Frequency != recurrence.FrequencyNone
}

// User represents an employee account. Outbound sync resolves attendee
// addresses from these records.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SyncState tracks per-user external sync bookkeeping: the advisory cooldown
// marker and the last successful run for observability.
type SyncState struct {
	UserID        string
	LastRunAt     *time.Time
	LastSuccessAt *time.Time
	LastError     string
	UpdatedAt     time.Time
}
