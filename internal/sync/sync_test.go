package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/groupware-scheduler/internal/calendar"
	"github.com/example/groupware-scheduler/internal/persistence"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sequentialIDs(prefix string) func() string {
	counter := 0
	return func() string {
		counter++
		return fmt.Sprintf("%s-%d", prefix, counter)
	}
}

// fakeStore is an in-memory ScheduleStore honoring the filter semantics the
// syncers rely on: time bounds select intersecting entries.
type fakeStore struct {
	schedules map[string]persistence.Schedule
	order     []string
	createErr error
	deleteErr error
}

func newFakeStore(seed ...persistence.Schedule) *fakeStore {
	store := &fakeStore{schedules: make(map[string]persistence.Schedule)}
	for _, schedule := range seed {
		store.schedules[schedule.ID] = schedule
		store.order = append(store.order, schedule.ID)
	}
	return store
}

func (s *fakeStore) CreateSchedule(_ context.Context, schedule persistence.Schedule) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.schedules[schedule.ID]; ok {
		return persistence.ErrDuplicate
	}
	s.schedules[schedule.ID] = schedule
	s.order = append(s.order, schedule.ID)
	return nil
}

func (s *fakeStore) ListSchedules(_ context.Context, filter persistence.ScheduleFilter) ([]persistence.Schedule, error) {
	var result []persistence.Schedule
	for _, id := range s.order {
		schedule, ok := s.schedules[id]
		if !ok {
			continue
		}
		if filter.StartsAfter != nil && !schedule.End.After(*filter.StartsAfter) {
			continue
		}
		if filter.EndsBefore != nil && !schedule.Start.Before(*filter.EndsBefore) {
			continue
		}
		if filter.Origin != nil && schedule.Origin != *filter.Origin {
			continue
		}
		if len(filter.ParticipantIDs) > 0 && !hasAnyParticipant(schedule, filter.ParticipantIDs) {
			continue
		}
		result = append(result, schedule)
	}
	return result, nil
}

func (s *fakeStore) DeleteSchedule(_ context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.schedules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func hasAnyParticipant(schedule persistence.Schedule, ids []string) bool {
	for _, want := range ids {
		for _, have := range schedule.ParticipantIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

// fakeUsers resolves participant ids from a fixed map.
type fakeUsers struct {
	users map[string]persistence.User
}

func (u *fakeUsers) GetUser(_ context.Context, id string) (persistence.User, error) {
	user, ok := u.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// fakeCalendar is an in-memory CalendarAPI recording created and deleted
// events and returning configured errors.
type fakeCalendar struct {
	events    []calendar.Event
	created   []calendar.Event
	deleted   []string
	listErr   error
	createErr error
	listCalls int
	nextID    int
}

func (c *fakeCalendar) ListEvents(_ context.Context, _ string, _, _ time.Time) ([]calendar.Event, error) {
	c.listCalls++
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]calendar.Event(nil), c.events...), nil
}

func (c *fakeCalendar) CreateEvent(_ context.Context, _ string, event calendar.Event) (calendar.Event, error) {
	if c.createErr != nil {
		return calendar.Event{}, c.createErr
	}
	c.nextID++
	event.ID = fmt.Sprintf("remote-%d", c.nextID)
	c.created = append(c.created, event)
	c.events = append(c.events, event)
	return event, nil
}

func (c *fakeCalendar) DeleteEvent(_ context.Context, _, eventID string) error {
	c.deleted = append(c.deleted, eventID)
	return nil
}

// fakeStates is an in-memory StateStore.
type fakeStates struct {
	states map[string]persistence.SyncState
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: make(map[string]persistence.SyncState)}
}

func (s *fakeStates) GetSyncState(_ context.Context, userID string) (persistence.SyncState, error) {
	state, ok := s.states[userID]
	if !ok {
		return persistence.SyncState{}, persistence.ErrNotFound
	}
	return state, nil
}

func (s *fakeStates) UpsertSyncState(_ context.Context, state persistence.SyncState) error {
	s.states[state.UserID] = state
	return nil
}

func TestDedupKey(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		title  string
		start  time.Time
		wantEq bool
	}{
		{name: "same title and start", title: "Weekly Sync", start: start, wantEq: true},
		{name: "ignores case and surrounding whitespace", title: "  weekly sync ", start: start, wantEq: true},
		{name: "different start", title: "Weekly Sync", start: start.Add(time.Minute), wantEq: false},
		{name: "different title", title: "Daily Sync", start: start, wantEq: false},
	}

	base := dedupKey("Weekly Sync", start)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := dedupKey(tt.title, tt.start)
			if (got == base) != tt.wantEq {
				t.Errorf("dedupKey(%q, %v) = %q, base = %q, wantEq = %v", tt.title, tt.start, got, base, tt.wantEq)
			}
		})
	}
}

func TestTombstoneKeyUsesDateOnly(t *testing.T) {
	t.Parallel()

	morning := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 6, 2, 18, 30, 0, 0, time.UTC)
	nextDay := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)

	if tombstoneKey("Standup", morning) != tombstoneKey("Standup", evening) {
		t.Error("expected same-day events to share a tombstone key")
	}
	if tombstoneKey("Standup", morning) == tombstoneKey("Standup", nextDay) {
		t.Error("expected different days to produce different tombstone keys")
	}
}

func TestHorizonAround(t *testing.T) {
	t.Parallel()

	reference := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	horizon := HorizonAround(reference, 24*time.Hour, 48*time.Hour)

	if got := horizon.Start; !got.Equal(reference.Add(-24 * time.Hour)) {
		t.Errorf("unexpected horizon start: %v", got)
	}
	if got := horizon.End; !got.Equal(reference.Add(48 * time.Hour)) {
		t.Errorf("unexpected horizon end: %v", got)
	}
}
