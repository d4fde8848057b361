package bottleneck

import (
	"fmt"

	"quote-sentinel/internal/domain"
)

// Thresholds are the per-phase duration limits in seconds.
type Thresholds map[domain.Phase]int64

func DefaultThresholds() Thresholds {
	return Thresholds{
		domain.PhaseDetection:       300,
		domain.PhaseSupplierContact: 600,
		domain.PhaseResponseWait:    172800,
		domain.PhaseQuoteGeneration: 1800,
		domain.PhaseApproval:        14400,
		domain.PhaseSend:            300,
	}
}

// Violation is a step that ran past its phase threshold.
type Violation struct {
	Step      string          `json:"step"`
	Phase     domain.Phase    `json:"phase"`
	Duration  int64           `json:"duration"`
	Threshold int64           `json:"threshold"`
	Excess    int64           `json:"excess"`
	Severity  domain.Severity `json:"severity"`
}

type Detector struct {
	thresholds Thresholds
}

// NewDetector uses the defaults for any phase missing from overrides.
func NewDetector(overrides Thresholds) *Detector {
	thresholds := DefaultThresholds()
	for phase, secs := range overrides {
		if secs > 0 {
			thresholds[phase] = secs
		}
	}
	return &Detector{thresholds: thresholds}
}

func (d *Detector) Threshold(phase domain.Phase) (int64, bool) {
	t, ok := d.thresholds[phase]
	return t, ok
}

// Evaluate checks one finished step. Steps outside the phase table never
// violate.
func (d *Detector) Evaluate(stepName string, durationSeconds int64) (Violation, bool) {
	phase, ok := domain.PhaseForStep(stepName)
	if !ok {
		return Violation{}, false
	}
	threshold, ok := d.thresholds[phase]
	if !ok || durationSeconds <= threshold {
		return Violation{}, false
	}

	excess := durationSeconds - threshold
	severity := domain.SeverityWarning
	if excess > threshold {
		severity = domain.SeverityCritical
	}

	return Violation{
		Step:      stepName,
		Phase:     phase,
		Duration:  durationSeconds,
		Threshold: threshold,
		Excess:    excess,
		Severity:  severity,
	}, true
}

// Apply records v on the execution and returns the alert to raise. The
// detected flag is never cleared; the detail always reflects the latest
// violation.
func (d *Detector) Apply(execution *domain.WorkflowExecution, v Violation) *domain.Alert {
	execution.BottleneckDetected = true
	execution.BottleneckStep = v.Step
	execution.BottleneckDuration = v.Duration
	execution.BottleneckExcess = v.Excess

	alert := domain.NewAlert(
		domain.AlertBottleneckDetected,
		v.Severity,
		fmt.Sprintf("Step %s took %ds, %ds over the %ds threshold", v.Step, v.Duration, v.Excess, v.Threshold),
		map[string]any{
			"step":      v.Step,
			"phase":     string(v.Phase),
			"duration":  v.Duration,
			"threshold": v.Threshold,
			"excess":    v.Excess,
		},
	)
	workflowID := execution.WorkflowID
	alert.WorkflowID = &workflowID

	return alert
}
