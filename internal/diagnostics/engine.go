package diagnostics

import (
	"time"

	"quote-sentinel/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var diagnosesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quote_sentinel_diagnoses_total",
		Help: "Failures classified, by primary issue",
	},
	[]string{"issue"},
)

// Policy holds the parameters of the recovery actions the rules propose.
type Policy struct {
	CircuitBreakerWait time.Duration `yaml:"circuit_breaker_wait" validate:"gte=0"`
	TimeoutMultiplier  float64       `yaml:"timeout_multiplier" validate:"gte=1"`
	EmailRetryBackoff  time.Duration `yaml:"email_retry_backoff" validate:"gte=0"`
}

func DefaultPolicy() Policy {
	return Policy{
		CircuitBreakerWait: 300 * time.Second,
		TimeoutMultiplier:  2,
		EmailRetryBackoff:  60 * time.Second,
	}
}

// Diagnosis is the outcome of classifying one failure.
type Diagnosis struct {
	Issues         []domain.DiagnosticIssue
	Actions        []domain.RecoveryAction
	CanAutoRecover bool
}

// Primary is the issue of the first matching rule, or unclassified.
func (d Diagnosis) Primary() domain.IssueKind {
	if len(d.Issues) == 0 {
		return domain.IssueUnclassified
	}
	return d.Issues[0].Issue
}

func (d Diagnosis) Severity() domain.IssueSeverity {
	if len(d.Issues) == 0 {
		return ""
	}
	return d.Issues[0].Severity
}

func (d Diagnosis) SuggestedFixes() []string {
	if len(d.Issues) == 0 {
		return nil
	}
	return d.Issues[0].SuggestedFixes
}

func (d Diagnosis) Classified() bool {
	return len(d.Issues) > 0
}

type Engine struct {
	rules  []Rule
	policy Policy
}

func NewEngine(policy Policy, rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules, policy: policy}
}

// Diagnose runs every rule in order. Each match contributes its issue and
// actions; an unmatched failure yields an empty diagnosis.
func (e *Engine) Diagnose(f Failure) Diagnosis {
	var d Diagnosis
	for _, rule := range e.rules {
		if !rule.Match(f) {
			continue
		}
		issue, actions := rule.Build(f, e.policy)
		d.Issues = append(d.Issues, issue)
		d.Actions = append(d.Actions, actions...)
		if issue.AutomatedFixAvailable {
			d.CanAutoRecover = true
		}
	}

	diagnosesTotal.WithLabelValues(string(d.Primary())).Inc()
	return d
}

// Apply stores the diagnosis on the execution. Unclassified failures leave
// the diagnostic fields empty.
func (d Diagnosis) Apply(execution *domain.WorkflowExecution) {
	if !d.Classified() {
		return
	}
	execution.DiagnosticResults = d.Issues
	execution.SuggestedFixes = d.SuggestedFixes()
	if d.Primary() == domain.IssueCircuitBreakerTriggered {
		execution.CircuitBreakerTriggered = true
		for _, a := range d.Actions {
			if a.Kind == domain.ActionWaitForCircuitBreakerReset {
				execution.CircuitBreakerService = a.Service
				break
			}
		}
	}
}
