package testfixtures

import (
	"context"
	"testing"

	"github.com/example/groupware-scheduler/internal/application"
	"github.com/example/groupware-scheduler/internal/persistence"
)

type capturingScheduleStore struct {
	created persistence.Schedule
}

func (c *capturingScheduleStore) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	c.created = schedule
	return nil
}

func (c *capturingScheduleStore) CreateSchedules(ctx context.Context, schedules []persistence.Schedule) error {
	if len(schedules) > 0 {
		c.created = schedules[0]
	}
	return nil
}

func (c *capturingScheduleStore) UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	return nil
}

func (c *capturingScheduleStore) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	return persistence.Schedule{}, persistence.ErrNotFound
}

func (c *capturingScheduleStore) ListSchedules(ctx context.Context, filter persistence.ScheduleFilter) ([]persistence.Schedule, error) {
	return nil, nil
}

func (c *capturingScheduleStore) DeleteSchedule(ctx context.Context, id string) error {
	return nil
}

func (c *capturingScheduleStore) DeleteSeries(ctx context.Context, masterID string) error {
	return nil
}

type allKnownDirectory struct{}

func (allKnownDirectory) MissingUserIDs(ctx context.Context, ids []string) ([]string, error) {
	return nil, nil
}

func TestServiceFactoryNewScheduleService(t *testing.T) {
	factory := NewServiceFactory()
	store := &capturingScheduleStore{}

	svc := factory.NewScheduleService(ScheduleServiceDeps{
		Schedules: store,
		Users:     allKnownDirectory{},
	})

	fixture := NewScheduleFixture(WithScheduleCreator("user-900"), WithScheduleParticipants("user-900"))
	principal := application.Principal{UserID: "user-900"}

	schedule, _, err := svc.CreateSchedule(context.Background(), application.CreateScheduleParams{
		Principal: principal,
		Input:     fixture.Input(),
	})
	if err != nil {
		t.Fatalf("CreateSchedule returned error: %v", err)
	}

	if schedule.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", schedule.ID)
	}
	if store.created.ID != schedule.ID {
		t.Fatalf("store received unexpected ID: %q", store.created.ID)
	}
	if !schedule.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), schedule.CreatedAt)
	}
}
