package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quote-sentinel/internal/alerting"
	"quote-sentinel/internal/bottleneck"
	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/core/updater"
	"quote-sentinel/internal/diagnostics"
	"quote-sentinel/internal/domain"
	"quote-sentinel/internal/recovery"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Tracker records the lifecycle of workflow runs. It never fails the caller:
// infrastructure errors are logged and reported in the result.
type Tracker struct {
	repo        ports.WorkflowRepository
	rows        *updater.Updater
	detector    *bottleneck.Detector
	diagnostics *diagnostics.Engine
	recovery    *recovery.Coordinator
	alerts      *alerting.Dispatcher
	clock       clockwork.Clock
	logger      *zap.Logger
}

type Options struct {
	Repo        ports.WorkflowRepository
	Rows        *updater.Updater
	Detector    *bottleneck.Detector
	Diagnostics *diagnostics.Engine
	Recovery    *recovery.Coordinator
	Alerts      *alerting.Dispatcher
	Clock       clockwork.Clock
	Logger      *zap.Logger
}

func New(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Detector == nil {
		opts.Detector = bottleneck.NewDetector(nil)
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = diagnostics.NewEngine(diagnostics.DefaultPolicy())
	}
	return &Tracker{
		repo:        opts.Repo,
		rows:        opts.Rows,
		detector:    opts.Detector,
		diagnostics: opts.Diagnostics,
		recovery:    opts.Recovery,
		alerts:      opts.Alerts,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
}

func (t *Tracker) fail(op, workflowID string, err error) error {
	trackingErrors.WithLabelValues(op).Inc()
	t.logger.Error("tracking operation failed",
		zap.String("operation", op),
		zap.String("workflow_id", workflowID),
		zap.Error(err))
	return domain.NewWorkflowError(op, workflowID, err)
}

// Start creates the execution record. A duplicate id is reported, not raised.
func (t *Tracker) Start(ctx context.Context, workflowID string, workflowType domain.WorkflowType, ids domain.CorrelatedIDs) StartResult {
	result := StartResult{WorkflowID: workflowID}

	if !workflowType.Valid() {
		result.Err = t.fail("start", workflowID, fmt.Errorf("%w: %q", domain.ErrInvalidType, workflowType))
		result.Error = result.Err.Error()
		return result
	}

	execution := domain.NewWorkflowExecution(workflowID, workflowType, ids, t.clock.Now())
	err := t.rows.Do(workflowID, func() error {
		return t.repo.Create(ctx, execution)
	})

	switch {
	case errors.Is(err, domain.ErrWorkflowAlreadyExists):
		result.Duplicate = true
		result.Err = domain.NewWorkflowError("start", workflowID, err)
		result.Error = result.Err.Error()
		t.logger.Warn("workflow already started", zap.String("workflow_id", workflowID))
	case err != nil:
		result.Err = t.fail("start", workflowID, err)
		result.Error = result.Err.Error()
	default:
		result.Created = true
		t.logger.Info("workflow started",
			zap.String("workflow_id", workflowID),
			zap.String("workflow_type", string(workflowType)))
	}

	return result
}

func (t *Tracker) Get(ctx context.Context, workflowID string) (*domain.WorkflowExecution, error) {
	return t.repo.GetByID(ctx, workflowID)
}

// UpdateStepProgress upserts one step. Repeating an update that already
// holds is a no-op.
func (t *Tracker) UpdateStepProgress(ctx context.Context, u StepUpdate) StepResult {
	result := StepResult{WorkflowID: u.WorkflowID, StepName: u.StepName}

	if !u.Status.Valid() || u.StepName == "" {
		result.Err = t.fail("update_step", u.WorkflowID, fmt.Errorf("%w: step %q status %q", domain.ErrInvalidStatus, u.StepName, u.Status))
		result.Error = result.Err.Error()
		return result
	}

	var (
		pending     []*domain.Alert
		diagnosis   diagnostics.Diagnosis
		recoverPlan []domain.RecoveryAction
		applied     bool
	)

	execution, err := t.rows.Update(ctx, u.WorkflowID, func(execution *domain.WorkflowExecution) error {
		// fn may be re-run on a version conflict
		pending, recoverPlan, applied = nil, nil, false
		diagnosis = diagnostics.Diagnosis{}
		result.DurationSeconds, result.Bottleneck = nil, nil

		if execution.IsClosed() {
			return domain.ErrWorkflowClosed
		}

		step, created := t.upsertStep(execution, u.StepName)
		now := t.clock.Now()

		switch u.Status {
		case domain.StepPending:
			if !created {
				return updater.ErrNoChange
			}

		case domain.StepInProgress:
			if step.Status == domain.StepInProgress {
				return updater.ErrNoChange
			}
			if running, ok := execution.RunningStep(); ok && running.Name != step.Name {
				return fmt.Errorf("%w: %s", domain.ErrStepAlreadyRunning, running.Name)
			}
			start := now
			step.Status = domain.StepInProgress
			step.StartedAt = &start
			step.CompletedAt = nil
			step.DurationSeconds = nil
			step.Error = ""
			t.advanceStatus(execution, step.Name)

		case domain.StepSkipped:
			if step.Status == domain.StepSkipped {
				return updater.ErrNoChange
			}
			end := now
			zero := int64(0)
			step.Status = domain.StepSkipped
			step.CompletedAt = &end
			step.DurationSeconds = &zero

		case domain.StepCompleted, domain.StepFailed:
			if step.Status == u.Status {
				return updater.ErrNoChange
			}
			d := step.Finish(u.Status, now)
			result.DurationSeconds = &d

			if phase, ok := domain.PhaseForStep(step.Name); ok {
				execution.SetPhaseDuration(phase, d)
				phaseDuration.WithLabelValues(string(phase)).Observe(float64(d))
			}
			if v, ok := t.detector.Evaluate(step.Name, d); ok {
				alert := t.detector.Apply(execution, v)
				result.Bottleneck = &v
				if t.alerts != nil && t.alerts.Mark(execution, alert) {
					pending = append(pending, alert)
				}
			}
		}

		if u.Status == domain.StepFailed {
			errText := failureText(u)
			step.Error = errText
			diagnosis, recoverPlan = t.recordFailure(execution, u, errText)
		}

		step.Metadata = mergeMetadata(step.Metadata, u.Metadata)
		applied = true
		return nil
	})

	if err != nil {
		if errors.Is(err, domain.ErrWorkflowClosed) || errors.Is(err, domain.ErrStepAlreadyRunning) {
			result.Err = domain.NewWorkflowError("update_step", u.WorkflowID, err)
			t.logger.Warn("step update rejected",
				zap.String("workflow_id", u.WorkflowID),
				zap.String("step", u.StepName),
				zap.Error(err))
		} else {
			result.Err = t.fail("update_step", u.WorkflowID, err)
		}
		result.Error = result.Err.Error()
		return result
	}

	result.Applied = applied
	result.Status = execution.Status
	if !applied {
		return result
	}

	stepTransitions.WithLabelValues(string(u.Status)).Inc()
	if u.Status == domain.StepFailed {
		result.Issue = diagnosis.Primary()
		result.CanAutoRecover = diagnosis.CanAutoRecover
	}

	for _, alert := range pending {
		if err := t.alerts.Emit(ctx, alert); err != nil {
			t.fail("emit_alert", u.WorkflowID, err)
			continue
		}
		result.AlertIDs = append(result.AlertIDs, alert.ID.String())
	}

	if len(recoverPlan) > 0 {
		t.recovery.Schedule(u.WorkflowID, execution.QuoteRequestID, recoverPlan)
		result.RecoveryScheduled = true
	}

	return result
}

func (t *Tracker) upsertStep(execution *domain.WorkflowExecution, name string) (*domain.WorkflowStep, bool) {
	if step, ok := execution.Step(name); ok {
		return step, false
	}
	execution.Steps = append(execution.Steps, domain.NewStep(name))
	return &execution.Steps[len(execution.Steps)-1], true
}

// advanceStatus moves an unfinished workflow into the status of the phase
// the started step belongs to.
func (t *Tracker) advanceStatus(execution *domain.WorkflowExecution, stepName string) {
	if execution.IsFinished() {
		return
	}
	phase, ok := domain.PhaseForStep(stepName)
	if !ok {
		return
	}
	if status, ok := domain.StatusForPhase(phase); ok {
		execution.Status = status
	}
}

// recordFailure stores the failure, diagnoses it and either plans recovery
// or marks the workflow failed.
func (t *Tracker) recordFailure(execution *domain.WorkflowExecution, u StepUpdate, errText string) (diagnostics.Diagnosis, []domain.RecoveryAction) {
	execution.FailureReason = errText
	execution.FailureStep = u.StepName
	execution.FailureCount++
	execution.LastError = errText
	if stack, ok := u.Metadata["stack"].(string); ok {
		execution.ErrorStack = stack
	}

	diagnosis := t.diagnostics.Diagnose(diagnostics.Failure{
		WorkflowID:         execution.WorkflowID,
		StepName:           u.StepName,
		Message:            errText,
		Err:                u.Err,
		QuoteRequestID:     execution.QuoteRequestID,
		SuppliersContacted: execution.SuppliersContacted,
		SuppliersResponded: execution.SuppliersResponded,
	})
	diagnosis.Apply(execution)

	if diagnosis.CanAutoRecover && len(diagnosis.Actions) > 0 && t.recovery != nil {
		t.recovery.Begin(execution, diagnosis.Actions)
		t.logger.Info("failure diagnosed, recovery planned",
			zap.String("workflow_id", execution.WorkflowID),
			zap.String("step", u.StepName),
			zap.String("issue", string(diagnosis.Primary())),
			zap.Int("actions", len(diagnosis.Actions)))
		return diagnosis, diagnosis.Actions
	}

	execution.Status = domain.WorkflowFailed
	t.logger.Warn("unrecoverable step failure",
		zap.String("workflow_id", execution.WorkflowID),
		zap.String("step", u.StepName),
		zap.String("issue", string(diagnosis.Primary())),
		zap.String("error", errText))
	return diagnosis, nil
}

func failureText(u StepUpdate) string {
	if u.Error != "" {
		return u.Error
	}
	if u.Err != nil {
		return u.Err.Error()
	}
	return "step failed"
}

func mergeMetadata(current, update map[string]any) map[string]any {
	if len(update) == 0 {
		return current
	}
	merged := make(map[string]any, len(current)+len(update))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}

// UpdateSupplierMetrics stores the supplier counters and raises
// supplier_non_response once per workflow when nobody answered in time.
func (t *Tracker) UpdateSupplierMetrics(ctx context.Context, workflowID string, contacted, responded int) SupplierResult {
	result := SupplierResult{WorkflowID: workflowID}

	if contacted < 0 || responded < 0 {
		result.Err = t.fail("update_suppliers", workflowID, fmt.Errorf("negative supplier counts %d/%d", contacted, responded))
		result.Error = result.Err.Error()
		return result
	}

	var alert *domain.Alert
	_, err := t.rows.Update(ctx, workflowID, func(execution *domain.WorkflowExecution) error {
		alert = nil
		execution.SuppliersContacted = contacted
		execution.SuppliersResponded = responded

		if contacted == 0 || responded > 0 || t.alerts == nil {
			return nil
		}
		wait := t.responseWait(execution)
		if wait <= t.alerts.Policy().SupplierWaitLimit {
			return nil
		}

		a := domain.NewAlert(domain.AlertSupplierNonResponse, domain.SeverityWarning,
			fmt.Sprintf("None of %d contacted suppliers responded after %s", contacted, wait.Round(time.Minute)),
			map[string]any{
				"suppliers_contacted": contacted,
				"wait_seconds":        int64(wait.Seconds()),
				"quote_request_id":    execution.QuoteRequestID,
			})
		if t.alerts.Mark(execution, a) {
			alert = a
		}
		return nil
	})
	if err != nil {
		result.Err = t.fail("update_suppliers", workflowID, err)
		result.Error = result.Err.Error()
		return result
	}

	result.Applied = true
	if alert != nil {
		if err := t.alerts.Emit(ctx, alert); err != nil {
			t.fail("emit_alert", workflowID, err)
		} else {
			result.AlertRaised = true
			result.AlertID = alert.ID.String()
		}
	}
	return result
}

// responseWait is the recorded response-wait phase duration, or the elapsed
// time of a response-wait step still running.
func (t *Tracker) responseWait(execution *domain.WorkflowExecution) time.Duration {
	if secs := execution.PhaseDuration(domain.PhaseResponseWait); secs != nil {
		return time.Duration(*secs) * time.Second
	}
	if step, ok := execution.RunningStep(); ok && step.StartedAt != nil {
		if phase, _ := domain.PhaseForStep(step.Name); phase == domain.PhaseResponseWait {
			return t.clock.Since(*step.StartedAt)
		}
	}
	return 0
}

// Complete is the terminal write. Later step updates are rejected.
func (t *Tracker) Complete(ctx context.Context, workflowID string, status domain.WorkflowStatus, metadata map[string]any) CompleteResult {
	result := CompleteResult{WorkflowID: workflowID}

	if status != domain.WorkflowCompleted && status != domain.WorkflowFailed {
		result.Err = t.fail("complete", workflowID, fmt.Errorf("%w: %q is not terminal", domain.ErrInvalidStatus, status))
		result.Error = result.Err.Error()
		return result
	}

	execution, err := t.rows.Update(ctx, workflowID, func(execution *domain.WorkflowExecution) error {
		result.Applied = false
		if execution.IsClosed() {
			if execution.Status == status {
				return updater.ErrNoChange
			}
			return domain.ErrWorkflowClosed
		}

		now := t.clock.Now()
		execution.Status = status
		execution.CompletedAt = &now
		execution.MergeMetadata(metadata)
		result.Applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowClosed) {
			result.Err = domain.NewWorkflowError("complete", workflowID, err)
		} else {
			result.Err = t.fail("complete", workflowID, err)
		}
		result.Error = result.Err.Error()
		return result
	}

	if t.recovery != nil && t.recovery.Cancel(workflowID) {
		t.logger.Info("pending recovery cancelled by completion", zap.String("workflow_id", workflowID))
	}

	result.Status = execution.Status
	t.logger.Info("workflow closed",
		zap.String("workflow_id", workflowID),
		zap.String("status", string(status)))
	return result
}

// RecordCustomerDecision stores whether the customer accepted the quote.
func (t *Tracker) RecordCustomerDecision(ctx context.Context, workflowID string, accepted bool) DecisionResult {
	result := DecisionResult{WorkflowID: workflowID}

	_, err := t.rows.Update(ctx, workflowID, func(execution *domain.WorkflowExecution) error {
		now := t.clock.Now()
		execution.CustomerAccepted = &accepted
		execution.CustomerDecidedAt = &now
		return nil
	})
	if err != nil {
		result.Err = t.fail("customer_decision", workflowID, err)
		result.Error = result.Err.Error()
		return result
	}

	result.Applied = true
	return result
}
