package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/groupware-scheduler/internal/application"
	"github.com/example/groupware-scheduler/internal/sync"
)

// ServiceFactory assists tests with constructing application services and
// sync components using deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// ScheduleServiceDeps captures dependencies for constructing a schedule service.
type ScheduleServiceDeps struct {
	Schedules   application.ScheduleStore
	Users       application.UserDirectory
	Notifier    application.NotificationDispatcher
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewScheduleService builds a schedule service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewScheduleService(deps ScheduleServiceDeps) *application.ScheduleService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewScheduleService(
		deps.Schedules,
		deps.Users,
		deps.Notifier,
		idGen,
		now,
		deps.Logger,
	)
}

// OrchestratorDeps captures dependencies for constructing a sync orchestrator
// with both directions wired.
type OrchestratorDeps struct {
	Schedules   sync.ScheduleStore
	Users       sync.UserDirectory
	Provider    sync.CalendarAPI
	States      sync.StateStore
	Config      sync.OrchestratorConfig
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewOrchestrator builds an orchestrator whose outbound and inbound syncers
// share the factory's clock and identifier sequence.
func (f *ServiceFactory) NewOrchestrator(deps OrchestratorDeps) *sync.Orchestrator {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}

	outbound := sync.NewOutboundSyncer(deps.Schedules, deps.Users, deps.Provider, idGen, deps.Logger)
	inbound := sync.NewInboundSyncer(deps.Schedules, deps.Provider, idGen, now, deps.Logger)
	return sync.NewOrchestrator(outbound, inbound, deps.States, deps.Config, now, deps.Logger)
}
