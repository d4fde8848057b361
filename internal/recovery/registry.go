package recovery

import (
	"context"
	"fmt"
	"time"

	"quote-sentinel/internal/circuitbreaker"
	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/domain"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Run is the state shared by the actions of one recovery sequence.
type Run struct {
	WorkflowID     string
	QuoteRequestID string
	// Metadata is merged into the workflow row when the run finishes.
	Metadata map[string]any
}

// ActionHandler is the blueprint for one kind of recovery action
type ActionHandler func(ctx context.Context, run *Run, action domain.RecoveryAction) error

// Registry holds all executable recovery actions
type Registry map[domain.ActionKind]ActionHandler

// BreakerStates is the read side of the circuit breaker manager.
type BreakerStates interface {
	State(service string) circuitbreaker.State
}

type Dependencies struct {
	Clock     clockwork.Clock
	Breakers  BreakerStates
	FollowUps ports.FollowUpQueue
	Logger    *zap.Logger
}

// InitRegistry wires the built-in actions.
func InitRegistry(deps Dependencies) Registry {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := make(Registry)

	registry[domain.ActionWaitForCircuitBreakerReset] = func(ctx context.Context, run *Run, action domain.RecoveryAction) error {
		logger.Info("waiting for circuit breaker cool-down",
			zap.String("workflow_id", run.WorkflowID),
			zap.String("service", action.Service),
			zap.Duration("delay", action.Delay))

		if err := sleep(ctx, clock, action.Delay); err != nil {
			return err
		}
		if deps.Breakers != nil && deps.Breakers.State(action.Service) == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit breaker for %s still open after %s", action.Service, action.Delay)
		}
		return nil
	}

	registry[domain.ActionRetryWithExtendedTimeout] = func(ctx context.Context, run *Run, action domain.RecoveryAction) error {
		run.Metadata["timeout_multiplier"] = action.Multiplier
		return nil
	}

	registry[domain.ActionRetryEmailSend] = func(ctx context.Context, run *Run, action domain.RecoveryAction) error {
		if err := sleep(ctx, clock, action.Backoff); err != nil {
			return err
		}
		run.Metadata["email_retry_after"] = action.Backoff.String()
		return nil
	}

	registry[domain.ActionSendSupplierFollowUps] = func(ctx context.Context, run *Run, action domain.RecoveryAction) error {
		quoteRequestID := action.QuoteRequestID
		if quoteRequestID == "" {
			quoteRequestID = run.QuoteRequestID
		}
		if quoteRequestID == "" {
			return fmt.Errorf("no quote request to follow up")
		}
		if deps.FollowUps == nil {
			logger.Warn("no follow-up queue configured, follow-up not sent",
				zap.String("quote_request_id", quoteRequestID))
			return nil
		}
		if err := deps.FollowUps.Push(ctx, quoteRequestID); err != nil {
			return fmt.Errorf("queue supplier follow-up: %w", err)
		}
		run.Metadata["follow_up_queued_for"] = quoteRequestID
		return nil
	}

	return registry
}

// sleep waits for d on clock, returning early if ctx is cancelled.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
