package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/groupware-scheduler/internal/application"
	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/recurrence"
	"github.com/example/groupware-scheduler/internal/scheduler"
)

var (
	userCounter     uint64
	scheduleCounter uint64
)

var referenceTime = time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic user record.
type UserFixture struct {
	ID          string
	Email       string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:          id,
		Email:       fmt.Sprintf("%s@example.com", id),
		DisplayName: fmt.Sprintf("User %03d", idx),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserDisplayName overrides the generated display name.
func WithUserDisplayName(name string) UserOption {
	return func(f *UserFixture) {
		f.DisplayName = name
	}
}

// WithUserAdmin sets the admin flag on the generated fixture.
func WithUserAdmin(isAdmin bool) UserOption {
	return func(f *UserFixture) {
		f.IsAdmin = isAdmin
	}
}

// WithUserTimestamps sets both created and updated timestamps on the fixture.
func WithUserTimestamps(created, updated time.Time) UserOption {
	return func(f *UserFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Principal returns an application.Principal derived from the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, IsAdmin: f.IsAdmin}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:          f.ID,
		Email:       f.Email,
		DisplayName: f.DisplayName,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// --------------------------- Schedule fixtures ---------------------------

// ScheduleFixture represents a deterministic schedule record.
type ScheduleFixture struct {
	ID              string
	Type            string
	Title           string
	Description     string
	Start           time.Time
	End             time.Time
	AllDay          bool
	Recurrence      *recurrence.Rule
	ParticipantIDs  []string
	Resources       []scheduler.ResourceBinding
	Origin          persistence.Origin
	ExternalEventID *string
	OriginalID      *string
	MeetingMode     persistence.MeetingMode
	Visibility      persistence.Visibility
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScheduleOption configures the generated schedule fixture.
type ScheduleOption func(*ScheduleFixture)

// NewScheduleFixture returns a deterministic schedule fixture with optional overrides.
func NewScheduleFixture(opts ...ScheduleOption) ScheduleFixture {
	idx := atomic.AddUint64(&scheduleCounter, 1)
	id := fmt.Sprintf("schedule-%03d", idx)
	start := referenceTime.Add(time.Duration(idx) * time.Hour)
	creator := fmt.Sprintf("user-%03d", idx)
	fixture := ScheduleFixture{
		ID:             id,
		Title:          fmt.Sprintf("Schedule %03d", idx),
		Start:          start,
		End:            start.Add(time.Hour),
		ParticipantIDs: []string{creator},
		Origin:         persistence.OriginLocal,
		MeetingMode:    persistence.MeetingModeInPerson,
		Visibility:     persistence.VisibilityPublic,
		CreatedBy:      creator,
		CreatedAt:      referenceTime,
		UpdatedAt:      referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithScheduleID overrides the schedule ID.
func WithScheduleID(id string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.ID = id
	}
}

// WithScheduleCreator sets the creator and makes them a participant when the
// participant list was not overridden.
func WithScheduleCreator(id string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.CreatedBy = id
	}
}

// WithScheduleTitle overrides the title.
func WithScheduleTitle(title string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.Title = title
	}
}

// WithScheduleDescription sets the description field.
func WithScheduleDescription(description string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.Description = description
	}
}

// WithScheduleStartEnd sets the start and end times.
func WithScheduleStartEnd(start, end time.Time) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.Start = start
		f.End = end
	}
}

// WithScheduleAllDay marks the schedule as all-day.
func WithScheduleAllDay() ScheduleOption {
	return func(f *ScheduleFixture) {
		f.AllDay = true
	}
}

// WithScheduleParticipants sets the participant IDs.
func WithScheduleParticipants(participants ...string) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.ParticipantIDs = append([]string(nil), participants...)
	}
}

// WithScheduleRecurrence attaches a recurrence rule, turning the fixture into
// a series master.
func WithScheduleRecurrence(rule recurrence.Rule) ScheduleOption {
	return func(f *ScheduleFixture) {
		copied := rule
		f.Recurrence = &copied
	}
}

// WithScheduleResources sets the resource bindings.
func WithScheduleResources(resources ...scheduler.ResourceBinding) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.Resources = append([]scheduler.ResourceBinding(nil), resources...)
	}
}

// WithScheduleOrigin sets the origin tag.
func WithScheduleOrigin(origin persistence.Origin) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.Origin = origin
	}
}

// WithScheduleExternalEventID links the fixture to a provider event id and
// tags it as externally originated.
func WithScheduleExternalEventID(eventID string) ScheduleOption {
	return func(f *ScheduleFixture) {
		id := eventID
		f.ExternalEventID = &id
		f.Origin = persistence.OriginExternal
	}
}

// WithScheduleOriginalID marks the fixture as a materialized occurrence of the
// given master.
func WithScheduleOriginalID(masterID string) ScheduleOption {
	return func(f *ScheduleFixture) {
		id := masterID
		f.OriginalID = &id
		f.Recurrence = nil
	}
}

// WithScheduleMeetingMode sets the meeting mode.
func WithScheduleMeetingMode(mode persistence.MeetingMode) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.MeetingMode = mode
	}
}

// WithScheduleVisibility sets the visibility.
func WithScheduleVisibility(visibility persistence.Visibility) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.Visibility = visibility
	}
}

// WithScheduleTimestamps sets both created and updated timestamps.
func WithScheduleTimestamps(created, updated time.Time) ScheduleOption {
	return func(f *ScheduleFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Persistence returns the fixture as a persistence.Schedule value.
func (f ScheduleFixture) Persistence() persistence.Schedule {
	var rule *recurrence.Rule
	if f.Recurrence != nil {
		copied := *f.Recurrence
		rule = &copied
	}
	return persistence.Schedule{
		ID:              f.ID,
		Type:            f.Type,
		Title:           f.Title,
		Description:     f.Description,
		Start:           f.Start,
		End:             f.End,
		AllDay:          f.AllDay,
		MultiDay:        !f.Start.IsZero() && !truncateDay(f.Start).Equal(truncateDay(f.End)),
		Recurrence:      rule,
		ParticipantIDs:  append([]string(nil), f.ParticipantIDs...),
		Resources:       append([]scheduler.ResourceBinding(nil), f.Resources...),
		Origin:          f.Origin,
		ExternalEventID: copyStringPtr(f.ExternalEventID),
		OriginalID:      copyStringPtr(f.OriginalID),
		MeetingMode:     f.MeetingMode,
		Visibility:      f.Visibility,
		CreatedBy:       f.CreatedBy,
		CreatedAt:       f.CreatedAt,
		UpdatedBy:       f.CreatedBy,
		UpdatedAt:       f.UpdatedAt,
	}
}

// Input returns the fixture as an application.ScheduleInput.
func (f ScheduleFixture) Input() application.ScheduleInput {
	var rule *recurrence.Rule
	if f.Recurrence != nil {
		copied := *f.Recurrence
		rule = &copied
	}
	return application.ScheduleInput{
		CreatorID:      f.CreatedBy,
		Type:           f.Type,
		Title:          f.Title,
		Description:    f.Description,
		Start:          f.Start,
		End:            f.End,
		AllDay:         f.AllDay,
		Recurrence:     rule,
		ParticipantIDs: append([]string(nil), f.ParticipantIDs...),
		Resources:      append([]scheduler.ResourceBinding(nil), f.Resources...),
		MeetingMode:    f.MeetingMode,
		Visibility:     f.Visibility,
	}
}

// Candidate returns the fixture as a scheduler.Candidate for conflict tests.
func (f ScheduleFixture) Candidate() scheduler.Candidate {
	return scheduler.Candidate{
		ExcludeID:    f.ID,
		Start:        f.Start,
		End:          f.End,
		Participants: append([]string(nil), f.ParticipantIDs...),
		Resources:    append([]scheduler.ResourceBinding(nil), f.Resources...),
	}
}

// --------------------------- Sync state fixtures -------------------------

// SyncStateFixture represents deterministic per-user sync bookkeeping.
type SyncStateFixture struct {
	UserID        string
	LastRunAt     *time.Time
	LastSuccessAt *time.Time
	LastError     string
	UpdatedAt     time.Time
}

// SyncStateOption configures the generated sync state fixture.
type SyncStateOption func(*SyncStateFixture)

// NewSyncStateFixture returns a deterministic sync state fixture.
func NewSyncStateFixture(userID string, opts ...SyncStateOption) SyncStateFixture {
	fixture := SyncStateFixture{
		UserID:    userID,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSyncLastRunAt sets the cooldown marker.
func WithSyncLastRunAt(t time.Time) SyncStateOption {
	return func(f *SyncStateFixture) {
		run := t
		f.LastRunAt = &run
	}
}

// WithSyncLastSuccessAt sets the last successful run timestamp.
func WithSyncLastSuccessAt(t time.Time) SyncStateOption {
	return func(f *SyncStateFixture) {
		success := t
		f.LastSuccessAt = &success
	}
}

// WithSyncLastError records the last failure message.
func WithSyncLastError(message string) SyncStateOption {
	return func(f *SyncStateFixture) {
		f.LastError = message
	}
}

// Persistence returns the fixture as a persistence.SyncState value.
func (f SyncStateFixture) Persistence() persistence.SyncState {
	return persistence.SyncState{
		UserID:        f.UserID,
		LastRunAt:     copyTimePtr(f.LastRunAt),
		LastSuccessAt: copyTimePtr(f.LastSuccessAt),
		LastError:     f.LastError,
		UpdatedAt:     f.UpdatedAt,
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
