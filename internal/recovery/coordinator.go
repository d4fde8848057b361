package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"quote-sentinel/internal/core/updater"
	"quote-sentinel/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// ErrCancelled is the failure recorded when an operator aborts a run.
	ErrCancelled     = errors.New("recovery cancelled")
	errSuperseded    = errors.New("recovery superseded by a newer run")
	errUnknownAction = errors.New("unknown recovery action")
)

var recoveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quote_sentinel_recoveries_total",
		Help: "Finished recovery runs by outcome",
	},
	[]string{"outcome"},
)

// Coordinator executes recovery actions. Each scheduled run has its own
// goroutine and context, so a waiting run never holds up another workflow.
type Coordinator struct {
	rows     *updater.Updater
	registry Registry
	logger   *zap.Logger

	base     context.Context
	shutdown context.CancelFunc

	mu   sync.Mutex
	runs map[string]*pending
	wg   sync.WaitGroup
}

type pending struct {
	cancel context.CancelCauseFunc
}

func NewCoordinator(rows *updater.Updater, registry Registry, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, shutdown := context.WithCancel(context.Background())
	return &Coordinator{
		rows:     rows,
		registry: registry,
		logger:   logger,
		base:     base,
		shutdown: shutdown,
		runs:     make(map[string]*pending),
	}
}

// Begin marks the execution as recovering with the given plan. The caller
// saves the row and then calls Schedule.
func (c *Coordinator) Begin(execution *domain.WorkflowExecution, actions []domain.RecoveryAction) {
	execution.Status = domain.WorkflowRecovering
	execution.RecoveryAttempted = true
	execution.RecoveryActions = actions
	execution.RecoverySuccessful = nil
}

// Schedule runs the actions in the background. A run already scheduled for
// the workflow is superseded: it stops and records nothing.
func (c *Coordinator) Schedule(workflowID, quoteRequestID string, actions []domain.RecoveryAction) {
	ctx, cancel := context.WithCancelCause(c.base)
	p := &pending{cancel: cancel}

	c.mu.Lock()
	if previous, ok := c.runs[workflowID]; ok {
		previous.cancel(errSuperseded)
	}
	c.runs[workflowID] = p
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(workflowID, p)

		err := c.Run(ctx, workflowID, quoteRequestID, actions)
		if errors.Is(err, errSuperseded) {
			c.logger.Info("recovery run superseded", zap.String("workflow_id", workflowID))
			return
		}
		if err != nil {
			c.logger.Warn("recovery run failed",
				zap.String("workflow_id", workflowID), zap.Error(err))
		}
	}()
}

func (c *Coordinator) release(workflowID string, p *pending) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A newer run may have replaced ours.
	if c.runs[workflowID] == p {
		delete(c.runs, workflowID)
	}
	p.cancel(nil)
}

// Cancel aborts the pending run for workflowID. The workflow ends failed.
func (c *Coordinator) Cancel(workflowID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.runs[workflowID]
	if ok {
		p.cancel(ErrCancelled)
		delete(c.runs, workflowID)
	}
	return ok
}

// Pending reports whether a run is scheduled for workflowID.
func (c *Coordinator) Pending(workflowID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.runs[workflowID]
	return ok
}

// Wait blocks until every scheduled run has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Shutdown cancels all runs and waits for them to record their outcome.
func (c *Coordinator) Shutdown() {
	c.shutdown()
	c.wg.Wait()
}

// Run executes the actions in order and records the outcome. The first
// failing action aborts the rest.
func (c *Coordinator) Run(ctx context.Context, workflowID, quoteRequestID string, actions []domain.RecoveryAction) error {
	run := &Run{
		WorkflowID:     workflowID,
		QuoteRequestID: quoteRequestID,
		Metadata:       make(map[string]any),
	}

	runErr := c.execute(ctx, run, actions)
	if runErr != nil && errors.Is(context.Cause(ctx), errSuperseded) {
		// The newer run owns the outcome.
		recoveriesTotal.WithLabelValues("superseded").Inc()
		if errors.Is(runErr, errSuperseded) {
			return runErr
		}
		return fmt.Errorf("%w: %w", errSuperseded, runErr)
	}
	if runErr == nil {
		recoveriesTotal.WithLabelValues("succeeded").Inc()
	} else {
		recoveriesTotal.WithLabelValues("failed").Inc()
	}

	// The outcome is written even when ctx was cancelled.
	_, err := c.rows.Update(context.WithoutCancel(ctx), workflowID, func(execution *domain.WorkflowExecution) error {
		if execution.IsClosed() {
			return updater.ErrNoChange
		}
		c.finish(execution, run, runErr)
		return nil
	})
	if err != nil {
		c.logger.Error("failed to record recovery outcome",
			zap.String("workflow_id", workflowID), zap.Error(err))
	}

	return runErr
}

func (c *Coordinator) execute(ctx context.Context, run *Run, actions []domain.RecoveryAction) error {
	for i, action := range actions {
		handler, ok := c.registry[action.Kind]
		if !ok {
			return fmt.Errorf("action %d: %w: %s", i, errUnknownAction, action.Kind)
		}

		if err := handler(ctx, run, action); err != nil {
			if cause := context.Cause(ctx); cause != nil && errors.Is(err, ctx.Err()) {
				err = cause
			}
			return fmt.Errorf("action %d (%s): %w", i, action.Kind, err)
		}

		c.logger.Info("recovery action completed",
			zap.String("workflow_id", run.WorkflowID),
			zap.String("action", string(action.Kind)))
	}
	return nil
}

// finish records the outcome. A workflow the stuck sweep flagged while the
// run was in flight keeps its stuck status.
func (c *Coordinator) finish(execution *domain.WorkflowExecution, run *Run, runErr error) {
	execution.MergeMetadata(run.Metadata)

	succeeded := runErr == nil
	execution.RecoverySuccessful = &succeeded
	if !succeeded {
		execution.LastError = runErr.Error()
	}

	if execution.Status == domain.WorkflowStuck {
		c.logger.Info("recovery finished on a stuck workflow, status kept",
			zap.String("workflow_id", execution.WorkflowID),
			zap.Bool("succeeded", succeeded))
		return
	}

	if succeeded {
		execution.Status = domain.WorkflowInitializing
		c.logger.Info("recovery succeeded, workflow is retryable",
			zap.String("workflow_id", execution.WorkflowID))
		return
	}

	execution.Status = domain.WorkflowFailed
	c.logger.Warn("recovery failed, workflow marked failed",
		zap.String("workflow_id", execution.WorkflowID),
		zap.Error(runErr))
}
