package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/groupware-scheduler/internal/calendar"
	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/scheduler"
)

func testHorizon() Horizon {
	return Horizon{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func localSchedule(id, title string, start time.Time, participants ...string) persistence.Schedule {
	return persistence.Schedule{
		ID:             id,
		Title:          title,
		Start:          start,
		End:            start.Add(time.Hour),
		ParticipantIDs: participants,
		Origin:         persistence.OriginLocal,
		MeetingMode:    persistence.MeetingModeInPerson,
		Visibility:     persistence.VisibilityPublic,
	}
}

func newOutboundForTest(store *fakeStore, users *fakeUsers, provider *fakeCalendar) *OutboundSyncer {
	if users == nil {
		users = &fakeUsers{users: map[string]persistence.User{}}
	}
	syncer := NewOutboundSyncer(store, users, provider, sequentialIDs("conf"), discardLogger())
	syncer.retry.sleep = func(context.Context, time.Duration) error { return nil }
	return syncer
}

func TestOutboundSync_ExportsLocalSchedules(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	schedule := localSchedule("s1", "Weekly Sync", start, "user-1", "user-2")
	schedule.MeetingMode = persistence.MeetingModeOnline
	schedule.Resources = []scheduler.ResourceBinding{
		{ResourceID: "room-a", ResourceType: scheduler.ResourceTypeRoom},
		{ResourceID: "vehicle-1", ResourceType: scheduler.ResourceTypeVehicle},
	}

	store := newFakeStore(schedule)
	users := &fakeUsers{users: map[string]persistence.User{
		"user-1": {ID: "user-1", Email: "taro@example.com"},
		"user-2": {ID: "user-2", Email: "hanako@example.com"},
	}}
	provider := &fakeCalendar{}

	summary, err := newOutboundForTest(store, users, provider).Sync(context.Background(), "user-1", testHorizon())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if summary.Added != 1 || summary.Skipped != 0 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(provider.created) != 1 {
		t.Fatalf("expected 1 created event, got %d", len(provider.created))
	}

	event := provider.created[0]
	if event.Title != "Weekly Sync" {
		t.Errorf("unexpected title %q", event.Title)
	}
	if event.Start.DateTime == nil || !event.Start.DateTime.Equal(start) {
		t.Errorf("unexpected start: %+v", event.Start)
	}
	if len(event.Attendees) != 2 {
		t.Errorf("expected 2 attendees, got %d", len(event.Attendees))
	}
	if event.Location != "room-a" {
		t.Errorf("expected location to hold only room bindings, got %q", event.Location)
	}
	if event.ConferenceRequest == nil || event.ConferenceRequest.RequestID == "" {
		t.Error("expected a conference request for an online meeting")
	}
}

func TestOutboundSync_NeverSelectsExternalOrigin(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	imported := localSchedule("s1", "Imported", start, "user-1")
	imported.Origin = persistence.OriginExternal

	store := newFakeStore(imported)
	provider := &fakeCalendar{}

	summary, err := newOutboundForTest(store, nil, provider).Sync(context.Background(), "user-1", testHorizon())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if summary.Skipped != 1 || summary.Added != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(provider.created) != 0 {
		t.Fatalf("external-origin schedule was exported: %+v", provider.created)
	}
}

func TestOutboundSync_SkipsEventsAlreadyPresentRemotely(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(localSchedule("s1", "Weekly Sync", start, "user-1"))
	provider := &fakeCalendar{events: []calendar.Event{
		{ID: "r1", Title: "Weekly Sync", Start: calendar.Timed(start), End: calendar.Timed(start.Add(time.Hour))},
	}}

	summary, err := newOutboundForTest(store, nil, provider).Sync(context.Background(), "user-1", testHorizon())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if summary.Skipped != 1 || summary.Added != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(provider.created) != 0 {
		t.Fatal("expected no duplicate export")
	}
}

func TestOutboundSync_AuthErrorAbortsPass(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(
		localSchedule("s1", "First", start, "user-1"),
		localSchedule("s2", "Second", start.Add(2*time.Hour), "user-1"),
	)
	provider := &fakeCalendar{createErr: calendar.ErrAuthExpired}

	_, err := newOutboundForTest(store, nil, provider).Sync(context.Background(), "user-1", testHorizon())
	if !errors.Is(err, calendar.ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
}

func TestOutboundSync_TransportFailureDegradesPerItem(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	store := newFakeStore(localSchedule("s1", "First", start, "user-1"))
	provider := &fakeCalendar{createErr: calendar.ErrRemoteUnavailable}

	summary, err := newOutboundForTest(store, nil, provider).Sync(context.Background(), "user-1", testHorizon())
	if err != nil {
		t.Fatalf("transport failure should not abort the pass: %v", err)
	}
	if summary.Failed != 1 || summary.Added != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestOutboundSync_AllDayScheduleUsesDateOnlyTimes(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	schedule := localSchedule("s1", "Holiday", start, "user-1")
	schedule.AllDay = true
	schedule.End = start.AddDate(0, 0, 1)

	store := newFakeStore(schedule)
	provider := &fakeCalendar{}

	if _, err := newOutboundForTest(store, nil, provider).Sync(context.Background(), "user-1", testHorizon()); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if len(provider.created) != 1 {
		t.Fatalf("expected 1 created event, got %d", len(provider.created))
	}
	event := provider.created[0]
	if event.Start.Date != "2025-06-02" || event.Start.DateTime != nil {
		t.Errorf("expected date-only start, got %+v", event.Start)
	}
	if event.End.Date != "2025-06-03" {
		t.Errorf("expected date-only end, got %+v", event.End)
	}
}
