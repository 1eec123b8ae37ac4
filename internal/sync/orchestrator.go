package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/groupware-scheduler/internal/calendar"
	"github.com/example/groupware-scheduler/internal/persistence"
)

// StateStore persists per-user sync bookkeeping. Keeping it an explicit
// keyed store rather than process state makes runs testable and safe when
// several users sync concurrently.
type StateStore interface {
	GetSyncState(ctx context.Context, userID string) (persistence.SyncState, error)
	UpsertSyncState(ctx context.Context, state persistence.SyncState) error
}

// OrchestratorConfig tunes a sync run. Zero durations fall back to defaults.
type OrchestratorConfig struct {
	// Cooldown is the minimum interval between runs for one user. Runs
	// requested inside the window are skipped, not queued.
	Cooldown         time.Duration
	LookBehind       time.Duration
	LookAhead        time.Duration
	OutboundEnabled  bool
	InboundEnabled   bool
	DetectTombstones bool
}

const (
	defaultCooldown   = 2 * time.Minute
	defaultLookBehind = 24 * time.Hour
	defaultLookAhead  = 30 * 24 * time.Hour
)

// RunResult reports what a single orchestrated run did per direction.
type RunResult struct {
	Skipped     bool
	NeedsReauth bool
	Outbound    Summary
	Inbound     Summary
	OutboundErr error
	InboundErr  error
}

// Orchestrator sequences outbound and inbound passes for one user at a time,
// enforcing the cooldown and isolating per-direction failures.
type Orchestrator struct {
	outbound *OutboundSyncer
	inbound  *InboundSyncer
	states   StateStore
	config   OrchestratorConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewOrchestrator wires dependencies for orchestrated sync runs.
func NewOrchestrator(outbound *OutboundSyncer, inbound *InboundSyncer, states StateStore, config OrchestratorConfig, now func() time.Time, logger *slog.Logger) *Orchestrator {
	if config.Cooldown <= 0 {
		config.Cooldown = defaultCooldown
	}
	if config.LookBehind <= 0 {
		config.LookBehind = defaultLookBehind
	}
	if config.LookAhead <= 0 {
		config.LookAhead = defaultLookAhead
	}
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		outbound: outbound,
		inbound:  inbound,
		states:   states,
		config:   config,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

// Run executes one sync cycle for the user. A run inside the cooldown window
// returns Skipped without touching the provider. An expired or missing
// credential aborts both directions and surfaces NeedsReauth; any other
// failure in one direction leaves the other direction's outcome intact.
func (o *Orchestrator) Run(ctx context.Context, userID string) (RunResult, error) {
	logger := syncLogger(ctx, o.logger, "orchestrator", "user_id", userID)
	result := RunResult{}

	state, err := o.states.GetSyncState(ctx, userID)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return result, fmt.Errorf("sync: failed to load sync state: %w", err)
	}

	now := o.now()
	if state.LastRunAt != nil && now.Sub(*state.LastRunAt) < o.config.Cooldown {
		result.Skipped = true
		logger.DebugContext(ctx, "run skipped by cooldown",
			"last_run_at", state.LastRunAt.Format(time.RFC3339))
		return result, nil
	}

	state.UserID = userID
	state.LastRunAt = &now
	if err := o.states.UpsertSyncState(ctx, state); err != nil {
		return result, fmt.Errorf("sync: failed to record run start: %w", err)
	}

	horizon := HorizonAround(now, o.config.LookBehind, o.config.LookAhead)

	if o.config.OutboundEnabled {
		result.Outbound, result.OutboundErr = o.outbound.Sync(ctx, userID, horizon)
		if isAuthError(result.OutboundErr) {
			result.NeedsReauth = true
			logger.WarnContext(ctx, "credential rejected, aborting run", "error", result.OutboundErr)
			o.recordOutcome(ctx, logger, state, result)
			return result, nil
		}
		if result.OutboundErr != nil {
			logger.ErrorContext(ctx, "outbound pass failed", "error", result.OutboundErr)
		}
	}

	if o.config.InboundEnabled {
		result.Inbound, result.InboundErr = o.inbound.Sync(ctx, userID, horizon, o.config.DetectTombstones)
		if isAuthError(result.InboundErr) {
			result.NeedsReauth = true
			logger.WarnContext(ctx, "credential rejected, aborting run", "error", result.InboundErr)
		} else if result.InboundErr != nil {
			logger.ErrorContext(ctx, "inbound pass failed", "error", result.InboundErr)
		}
	}

	o.recordOutcome(ctx, logger, state, result)
	return result, nil
}

func (o *Orchestrator) recordOutcome(ctx context.Context, logger *slog.Logger, state persistence.SyncState, result RunResult) {
	switch {
	case result.NeedsReauth:
		state.LastError = "needs re-auth"
	case result.OutboundErr != nil:
		state.LastError = result.OutboundErr.Error()
	case result.InboundErr != nil:
		state.LastError = result.InboundErr.Error()
	default:
		state.LastError = ""
		now := o.now()
		state.LastSuccessAt = &now
	}

	if err := o.states.UpsertSyncState(ctx, state); err != nil {
		logger.ErrorContext(ctx, "failed to record run outcome", "error", err)
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, calendar.ErrAuthExpired) || errors.Is(err, calendar.ErrNoValidToken)
}
