package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/example/groupware-scheduler/internal/application"
	"github.com/example/groupware-scheduler/internal/calendar"
	"github.com/example/groupware-scheduler/internal/config"
	httptransport "github.com/example/groupware-scheduler/internal/http"
	"github.com/example/groupware-scheduler/internal/persistence"
	"github.com/example/groupware-scheduler/internal/persistence/sqlite"
	"github.com/example/groupware-scheduler/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := pool.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	now := time.Now

	scheduleRepo := sqlite.NewScheduleRepository(pool)
	userRepo := sqlite.NewUserRepository(pool)
	syncStateRepo := sqlite.NewSyncStateRepository(pool)

	scheduleService := application.NewScheduleService(
		scheduleRepo,
		userRepo,
		newLogNotifier(logger),
		idGenerator,
		now,
		logger,
	)

	providerClient := calendar.NewClient(cfg.Calendar.BaseURL, staticTokenSource(cfg.Calendar.Tokens), nil)
	outbound := sync.NewOutboundSyncer(scheduleRepo, userRepo, providerClient, idGenerator, logger)
	inbound := sync.NewInboundSyncer(scheduleRepo, providerClient, idGenerator, now, logger)
	orchestrator := sync.NewOrchestrator(outbound, inbound, syncStateRepo, sync.OrchestratorConfig{
		Cooldown:         cfg.Sync.Cooldown,
		LookBehind:       cfg.Sync.LookBehind,
		LookAhead:        cfg.Sync.LookAhead,
		OutboundEnabled:  cfg.Sync.OutboundEnabled,
		InboundEnabled:   cfg.Sync.InboundEnabled,
		DetectTombstones: cfg.Sync.DetectTombstones,
	}, now, logger)

	scheduler := cron.New()
	if len(cfg.Sync.Users) > 0 {
		_, err := scheduler.AddFunc(cfg.Sync.CronSpec, func() {
			for _, userID := range cfg.Sync.Users {
				result, err := orchestrator.Run(ctx, userID)
				if err != nil {
					logger.Error("scheduled sync failed", "user_id", userID, "error", err)
					continue
				}
				if result.Skipped {
					continue
				}
				logger.Info("scheduled sync completed",
					"user_id", userID,
					"needs_reauth", result.NeedsReauth,
					"outbound_added", result.Outbound.Added,
					"inbound_added", result.Inbound.Added,
				)
			}
		})
		if err != nil {
			logger.Error("invalid sync cron spec", "spec", cfg.Sync.CronSpec, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	scheduleHandler := httptransport.NewScheduleHandler(scheduleService, logger)
	syncHandler := httptransport.NewSyncHandler(orchestrator, scheduleService, now, logger)

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Schedules: scheduleHandler,
		Sync:      syncHandler,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Identity(),
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// staticTokenSource serves bearer credentials from the configuration file.
// Users without a configured token are reported as needing re-authentication.
type staticTokenSource map[string]string

func (s staticTokenSource) Token(_ context.Context, userID string) (string, error) {
	token, ok := s[userID]
	if !ok || strings.TrimSpace(token) == "" {
		return "", calendar.ErrNoValidToken
	}
	return token, nil
}

// logNotifier records schedule change notifications in the service log.
// Delivery over mail or messaging channels happens in a separate system that
// consumes these entries.
type logNotifier struct {
	logger *slog.Logger
}

func newLogNotifier(logger *slog.Logger) *logNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Dispatch(ctx context.Context, schedule persistence.Schedule, recipientIDs []string, change application.ChangeType) error {
	n.logger.InfoContext(ctx, "schedule notification",
		"schedule_id", schedule.ID,
		"title", schedule.Title,
		"change", string(change),
		"recipients", recipientIDs,
	)
	return nil
}
