package alerting

import (
	"context"
	"fmt"
	"time"

	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/core/updater"
	"quote-sentinel/internal/domain"

	"go.uber.org/zap"
)

const (
	SweepStuck            = "stuck"
	SweepSupplierResponse = "supplier-response"
	SweepAcceptance       = "acceptance"
	SweepFailureRate      = "failure-rate"
)

// SweepNames lists the sweeps in the order RunAll executes them.
var SweepNames = []string{SweepStuck, SweepSupplierResponse, SweepAcceptance, SweepFailureRate}

// SweepResult is returned by every sweep. Errors are reported, not raised.
type SweepResult struct {
	Sweep       string          `json:"sweep"`
	Checked     int             `json:"checked"`
	Alerts      []*domain.Alert `json:"alerts"`
	InsertedIDs []string        `json:"inserted_ids"`
	Error       string          `json:"error,omitempty"`
}

func (r *SweepResult) add(alert *domain.Alert) {
	r.Alerts = append(r.Alerts, alert)
	r.InsertedIDs = append(r.InsertedIDs, alert.ID.String())
}

func (r *SweepResult) fail(err error) {
	if r.Error == "" {
		r.Error = err.Error()
	} else {
		r.Error += "; " + err.Error()
	}
}

// Sweep runs one sweep by name.
func (d *Dispatcher) Sweep(ctx context.Context, name string) (SweepResult, error) {
	switch name {
	case SweepStuck:
		return d.CheckStuckWorkflows(ctx), nil
	case SweepSupplierResponse:
		return d.MonitorSupplierResponseRates(ctx), nil
	case SweepAcceptance:
		return d.MonitorCustomerAcceptanceRates(ctx), nil
	case SweepFailureRate:
		return d.MonitorFailureRates(ctx), nil
	}
	return SweepResult{}, fmt.Errorf("unknown sweep %q", name)
}

func (d *Dispatcher) RunAll(ctx context.Context) []SweepResult {
	results := make([]SweepResult, 0, len(SweepNames))
	for _, name := range SweepNames {
		r, _ := d.Sweep(ctx, name)
		results = append(results, r)
	}
	return results
}

// CheckStuckWorkflows marks active workflows older than the stuck limit as
// stuck and raises workflow_stuck for each.
func (d *Dispatcher) CheckStuckWorkflows(ctx context.Context) SweepResult {
	defer recordSweep(SweepStuck, time.Now())
	result := SweepResult{Sweep: SweepStuck}

	active, err := d.repo.ListActive(ctx)
	if err != nil {
		d.logger.Error("stuck sweep: failed to list active workflows", zap.Error(err))
		result.fail(err)
		return result
	}

	cutoff := d.clock.Now().Add(-d.policy.StuckAfter)
	for _, candidate := range active {
		result.Checked++
		if !candidate.StartedAt.Before(cutoff) {
			continue
		}

		var alert *domain.Alert
		_, err := d.rows.Update(ctx, candidate.WorkflowID, func(execution *domain.WorkflowExecution) error {
			alert = nil
			if !execution.IsActive() || !execution.StartedAt.Before(cutoff) {
				return updater.ErrNoChange
			}

			age := d.clock.Now().Sub(execution.StartedAt)
			previous := execution.Status
			execution.Status = domain.WorkflowStuck

			a := domain.NewAlert(domain.AlertWorkflowStuck, domain.SeverityCritical,
				fmt.Sprintf("Workflow %s has been running for %s", execution.WorkflowID, age.Round(time.Minute)),
				map[string]any{
					"status":        string(previous),
					"started_at":    execution.StartedAt.UTC().Format(time.RFC3339),
					"age_hours":     int64(age.Hours()),
					"workflow_type": string(execution.WorkflowType),
				})
			if d.Mark(execution, a) {
				alert = a
			}
			return nil
		})
		if err != nil {
			d.logger.Error("stuck sweep: failed to update workflow",
				zap.String("workflow_id", candidate.WorkflowID), zap.Error(err))
			result.fail(err)
			continue
		}
		if alert == nil {
			continue
		}
		if err := d.Emit(ctx, alert); err != nil {
			result.fail(err)
			continue
		}
		result.add(alert)
	}

	return result
}

// MonitorSupplierResponseRates alerts when the trailing average supplier
// response rate drops below the minimum.
func (d *Dispatcher) MonitorSupplierResponseRates(ctx context.Context) SweepResult {
	defer recordSweep(SweepSupplierResponse, time.Now())

	return d.monitorTrend(ctx, SweepSupplierResponse, d.trends.SupplierResponseTrend,
		d.policy.SupplierResponseWindow, d.policy.SupplierResponseMin,
		func(avg float64, days int) *domain.Alert {
			return domain.NewAlert(domain.AlertSupplierNonResponse, domain.SeverityWarning,
				fmt.Sprintf("Supplier response rate averaged %.1f%% over the last %d days", avg*100, days),
				map[string]any{"average_rate": avg, "threshold": d.policy.SupplierResponseMin, "days": days})
		})
}

// MonitorCustomerAcceptanceRates alerts when the trailing average quote
// acceptance rate drops below the minimum.
func (d *Dispatcher) MonitorCustomerAcceptanceRates(ctx context.Context) SweepResult {
	defer recordSweep(SweepAcceptance, time.Now())

	return d.monitorTrend(ctx, SweepAcceptance, d.trends.CustomerAcceptanceTrend,
		d.policy.AcceptanceWindow, d.policy.AcceptanceMin,
		func(avg float64, days int) *domain.Alert {
			return domain.NewAlert(domain.AlertDecliningAcceptanceRate, domain.SeverityError,
				fmt.Sprintf("Quote acceptance rate averaged %.1f%% over the last %d days", avg*100, days),
				map[string]any{"average_rate": avg, "threshold": d.policy.AcceptanceMin, "days": days})
		})
}

type trendFunc func(ctx context.Context, since time.Time) ([]ports.DailyRate, error)

func (d *Dispatcher) monitorTrend(ctx context.Context, name string, trend trendFunc, window time.Duration, minRate float64, build func(avg float64, days int) *domain.Alert) SweepResult {
	result := SweepResult{Sweep: name}

	rates, err := trend(ctx, d.clock.Now().Add(-window))
	if err != nil {
		d.logger.Error("trend sweep failed", zap.String("sweep", name), zap.Error(err))
		result.fail(err)
		return result
	}

	result.Checked = len(rates)
	if len(rates) == 0 {
		return result
	}

	var sum float64
	for _, r := range rates {
		sum += r.Rate
	}
	avg := sum / float64(len(rates))
	if avg >= minRate {
		return result
	}

	alert := build(avg, int(window.Hours()/24))
	if err := d.Emit(ctx, alert); err != nil {
		result.fail(err)
		return result
	}
	result.add(alert)
	return result
}

// MonitorFailureRates alerts when the share of failed quote_automation runs
// in the window is strictly above the maximum.
func (d *Dispatcher) MonitorFailureRates(ctx context.Context) SweepResult {
	defer recordSweep(SweepFailureRate, time.Now())
	result := SweepResult{Sweep: SweepFailureRate}

	counts, err := d.repo.CountOutcomes(ctx, domain.WorkflowQuoteAutomation, d.clock.Now().Add(-d.policy.FailureRateWindow))
	if err != nil {
		d.logger.Error("failure rate sweep failed", zap.Error(err))
		result.fail(err)
		return result
	}

	result.Checked = int(counts.Total)
	if counts.Total == 0 {
		return result
	}

	rate := float64(counts.Failed) / float64(counts.Total)
	if rate <= d.policy.FailureRateMax {
		return result
	}

	alert := domain.NewAlert(domain.AlertHighFailureRate, domain.SeverityCritical,
		fmt.Sprintf("%.1f%% of quote automation runs failed (%d of %d)", rate*100, counts.Failed, counts.Total),
		map[string]any{
			"failure_rate":  rate,
			"failed":        counts.Failed,
			"total":         counts.Total,
			"threshold":     d.policy.FailureRateMax,
			"workflow_type": string(domain.WorkflowQuoteAutomation),
		})
	if err := d.Emit(ctx, alert); err != nil {
		result.fail(err)
		return result
	}
	result.add(alert)
	return result
}
