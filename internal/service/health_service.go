package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quote-sentinel/internal/circuitbreaker"
	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/domain"

	"github.com/jonboulle/clockwork"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	recentAlertLimit = 20
)

type HealthService interface {
	// Summary rolls up workflows started and alerts raised within window,
	// plus the live breaker states.
	Summary(ctx context.Context, window time.Duration) (Summary, error)
}

type BreakerSnapshots interface {
	Snapshots() []circuitbreaker.Health
}

type WorkflowCounts struct {
	Total     int                           `json:"total"`
	Active    int                           `json:"active"`
	Completed int                           `json:"completed"`
	Failed    int                           `json:"failed"`
	Stuck     int                           `json:"stuck"`
	Recovered int                           `json:"recovered"`
	ByStatus  map[domain.WorkflowStatus]int `json:"by_status"`
}

type AlertCounts struct {
	Total      int                      `json:"total"`
	ByType     map[domain.AlertType]int `json:"by_type"`
	BySeverity map[domain.Severity]int  `json:"by_severity"`
	Recent     []*domain.Alert          `json:"recent"`
}

type Summary struct {
	Status      string    `json:"status"`
	GeneratedAt time.Time `json:"generated_at"`
	WindowHours float64   `json:"window_hours"`

	Workflows           WorkflowCounts           `json:"workflows"`
	FailureRate         float64                  `json:"failure_rate"`
	AveragePhaseSeconds map[domain.Phase]float64 `json:"average_phase_seconds"`
	BottlenecksByStep   map[string]int           `json:"bottlenecks_by_step"`

	CircuitBreakers []circuitbreaker.Health `json:"circuit_breakers"`
	Alerts          AlertCounts             `json:"alerts"`
}

type healthService struct {
	repo           ports.WorkflowRepository
	alerts         ports.AlertRepository
	breakers       BreakerSnapshots
	clock          clockwork.Clock
	failureRateMax float64
}

// NewHealthService builds the dashboard roll-up. failureRateMax is the rate
// above which the summary reports unhealthy.
func NewHealthService(repo ports.WorkflowRepository, alerts ports.AlertRepository, breakers BreakerSnapshots, clock clockwork.Clock, failureRateMax float64) HealthService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &healthService{
		repo:           repo,
		alerts:         alerts,
		breakers:       breakers,
		clock:          clock,
		failureRateMax: failureRateMax,
	}
}

func (s *healthService) Summary(ctx context.Context, window time.Duration) (Summary, error) {
	now := s.clock.Now()
	since := now.Add(-window)

	started, err := s.repo.ListStartedSince(ctx, since)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list workflows: %w", err)
	}
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list active workflows: %w", err)
	}
	raised, err := s.alerts.ListSince(ctx, since)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list alerts: %w", err)
	}

	summary := Summary{
		GeneratedAt:       now,
		WindowHours:       window.Hours(),
		Workflows:         countWorkflows(started, len(active)),
		BottlenecksByStep: map[string]int{},
		Alerts:            countAlerts(raised),
	}
	if summary.Workflows.Total > 0 {
		summary.FailureRate = float64(summary.Workflows.Failed) / float64(summary.Workflows.Total)
	}
	summary.AveragePhaseSeconds = averagePhases(started)
	for _, execution := range started {
		if execution.BottleneckDetected {
			summary.BottlenecksByStep[execution.BottleneckStep]++
		}
	}

	if s.breakers != nil {
		summary.CircuitBreakers = s.breakers.Snapshots()
	}
	summary.Status = s.status(summary)

	return summary, nil
}

func countWorkflows(started []*domain.WorkflowExecution, active int) WorkflowCounts {
	counts := WorkflowCounts{
		Total:    len(started),
		Active:   active,
		ByStatus: map[domain.WorkflowStatus]int{},
	}
	for _, execution := range started {
		counts.ByStatus[execution.Status]++
		switch execution.Status {
		case domain.WorkflowCompleted:
			counts.Completed++
		case domain.WorkflowFailed:
			counts.Failed++
		case domain.WorkflowStuck:
			counts.Stuck++
		}
		if execution.RecoverySuccessful != nil && *execution.RecoverySuccessful {
			counts.Recovered++
		}
	}
	return counts
}

// averagePhases only averages runs that recorded the phase.
func averagePhases(started []*domain.WorkflowExecution) map[domain.Phase]float64 {
	out := make(map[domain.Phase]float64, len(domain.Phases))
	for _, phase := range domain.Phases {
		var sum, n int64
		for _, execution := range started {
			if d := execution.PhaseDuration(phase); d != nil {
				sum += *d
				n++
			}
		}
		if n > 0 {
			out[phase] = float64(sum) / float64(n)
		}
	}
	return out
}

func countAlerts(raised []*domain.Alert) AlertCounts {
	counts := AlertCounts{
		Total:      len(raised),
		ByType:     map[domain.AlertType]int{},
		BySeverity: map[domain.Severity]int{},
	}
	for _, a := range raised {
		counts.ByType[a.Type]++
		counts.BySeverity[a.Severity]++
	}

	recent := append([]*domain.Alert(nil), raised...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].CreatedAt.After(recent[j].CreatedAt) })
	if len(recent) > recentAlertLimit {
		recent = recent[:recentAlertLimit]
	}
	counts.Recent = recent
	return counts
}

func (s *healthService) status(summary Summary) string {
	if summary.FailureRate > s.failureRateMax {
		return StatusUnhealthy
	}

	degraded := summary.Workflows.Stuck > 0 || summary.Alerts.BySeverity[domain.SeverityCritical] > 0
	for _, b := range summary.CircuitBreakers {
		switch b.State {
		case circuitbreaker.StateOpen:
			return StatusUnhealthy
		case circuitbreaker.StateHalfOpen:
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}
