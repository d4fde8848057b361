package alerting

import (
	"context"
	"fmt"
	"time"

	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/core/updater"
	"quote-sentinel/internal/domain"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Policy holds the sweep thresholds.
type Policy struct {
	StuckAfter             time.Duration `yaml:"stuck_after" validate:"gt=0"`
	SupplierResponseWindow time.Duration `yaml:"supplier_response_window" validate:"gt=0"`
	SupplierResponseMin    float64       `yaml:"supplier_response_min" validate:"gte=0,lte=1"`
	AcceptanceWindow       time.Duration `yaml:"acceptance_window" validate:"gt=0"`
	AcceptanceMin          float64       `yaml:"acceptance_min" validate:"gte=0,lte=1"`
	FailureRateWindow      time.Duration `yaml:"failure_rate_window" validate:"gt=0"`
	FailureRateMax         float64       `yaml:"failure_rate_max" validate:"gte=0,lte=1"`
	// Non-response is only alerted once the wait has lasted this long.
	SupplierWaitLimit time.Duration `yaml:"supplier_wait_limit" validate:"gt=0"`
}

func DefaultPolicy() Policy {
	return Policy{
		StuckAfter:             24 * time.Hour,
		SupplierResponseWindow: 3 * 24 * time.Hour,
		SupplierResponseMin:    0.5,
		AcceptanceWindow:       14 * 24 * time.Hour,
		AcceptanceMin:          0.3,
		FailureRateWindow:      24 * time.Hour,
		FailureRateMax:         0.25,
		SupplierWaitLimit:      24 * time.Hour,
	}
}

type Dispatcher struct {
	rows     *updater.Updater
	repo     ports.WorkflowRepository
	alerts   ports.AlertRepository
	trends   ports.TrendSource
	notifier ports.AlertNotifier
	clock    clockwork.Clock
	policy   Policy
	logger   *zap.Logger
}

type Options struct {
	Rows     *updater.Updater
	Repo     ports.WorkflowRepository
	Alerts   ports.AlertRepository
	Trends   ports.TrendSource
	Notifier ports.AlertNotifier
	Clock    clockwork.Clock
	Policy   Policy
	Logger   *zap.Logger
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		rows:     opts.Rows,
		repo:     opts.Repo,
		alerts:   opts.Alerts,
		trends:   opts.Trends,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		policy:   opts.Policy,
		logger:   opts.Logger,
	}
}

func (d *Dispatcher) Policy() Policy {
	return d.policy
}

// Mark records alert on the execution row. It returns false if the
// workflow already carries an alert with the same dedupe key; alert_triggered
// is never cleared. The caller saves the row and then calls Emit.
func (d *Dispatcher) Mark(execution *domain.WorkflowExecution, alert *domain.Alert) bool {
	key := alert.DedupKey()
	if execution.HasAlert(key) {
		recordSuppressed(alert)
		return false
	}

	now := d.clock.Now()
	workflowID := execution.WorkflowID
	alert.WorkflowID = &workflowID
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}

	execution.AlertTriggered = true
	execution.AlertType = alert.Type
	execution.AlertSentAt = &now
	execution.AlertLog = append(execution.AlertLog, key)

	return true
}

// Emit persists the alert and notifies the operator channel. A failed
// notification is logged, not returned.
func (d *Dispatcher) Emit(ctx context.Context, alert *domain.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = d.clock.Now()
	}

	if err := d.alerts.Insert(ctx, alert); err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.Type, err)
	}
	RecordAlert(alert)

	fields := []zap.Field{
		zap.String("alert_id", alert.ID.String()),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
	}
	if alert.WorkflowID != nil {
		fields = append(fields, zap.String("workflow_id", *alert.WorkflowID))
	}
	d.logger.Warn(alert.Message, fields...)

	if d.notifier != nil {
		if err := d.notifier.PublishAlert(ctx, domain.NewAlertRaisedEvent(alert)); err != nil {
			d.logger.Error("failed to notify operators", append(fields, zap.Error(err))...)
		}
	}
	return nil
}

// TriggerAlert attaches alert to the workflow and dispatches it. It reports
// false without error when the alert was a duplicate.
func (d *Dispatcher) TriggerAlert(ctx context.Context, workflowID string, alert *domain.Alert) (bool, error) {
	var raised bool
	_, err := d.rows.Update(ctx, workflowID, func(execution *domain.WorkflowExecution) error {
		raised = d.Mark(execution, alert)
		if !raised {
			return updater.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !raised {
		return false, nil
	}
	return true, d.Emit(ctx, alert)
}

// ResolveAlert records the resolution time only.
func (d *Dispatcher) ResolveAlert(ctx context.Context, workflowID string) error {
	_, err := d.rows.Update(ctx, workflowID, func(execution *domain.WorkflowExecution) error {
		now := d.clock.Now()
		execution.AlertResolvedAt = &now
		return nil
	})
	return err
}
