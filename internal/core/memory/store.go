// Package memory is an in-process implementation of the repository ports,
// used by the test suites and by `serve --database-url memory://`.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/domain"

	"gorm.io/datatypes"
)

// Store keeps executions and alerts in maps guarded by one mutex. Rows are
// copied on the way in and out so callers never share state with the store.
type Store struct {
	mu         sync.RWMutex
	executions map[string]*domain.WorkflowExecution
	alerts     []*domain.Alert
}

func NewStore() *Store {
	return &Store{executions: make(map[string]*domain.WorkflowExecution)}
}

var (
	_ ports.WorkflowRepository = (*Store)(nil)
	_ ports.AlertRepository    = (*Store)(nil)
	_ ports.TrendSource        = (*Store)(nil)
)

func (s *Store) Create(_ context.Context, execution *domain.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[execution.WorkflowID]; exists {
		return domain.ErrWorkflowAlreadyExists
	}
	if execution.Version == 0 {
		execution.Version = 1
	}
	s.executions[execution.WorkflowID] = clone(execution)
	return nil
}

func (s *Store) GetByID(_ context.Context, workflowID string) (*domain.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execution, ok := s.executions[workflowID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return clone(execution), nil
}

func (s *Store) Save(_ context.Context, execution *domain.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.executions[execution.WorkflowID]
	if !ok {
		return domain.ErrWorkflowNotFound
	}
	if current.Version != execution.Version {
		return domain.ErrVersionConflict
	}

	execution.Version++
	execution.UpdatedAt = time.Now()
	s.executions[execution.WorkflowID] = clone(execution)
	return nil
}

func (s *Store) ListActive(_ context.Context) ([]*domain.WorkflowExecution, error) {
	return s.filter(func(e *domain.WorkflowExecution) bool { return e.IsActive() }), nil
}

func (s *Store) ListStartedSince(_ context.Context, since time.Time) ([]*domain.WorkflowExecution, error) {
	return s.filter(func(e *domain.WorkflowExecution) bool { return !e.StartedAt.Before(since) }), nil
}

func (s *Store) CountOutcomes(_ context.Context, workflowType domain.WorkflowType, since time.Time) (ports.OutcomeCounts, error) {
	var counts ports.OutcomeCounts
	for _, e := range s.filter(func(e *domain.WorkflowExecution) bool {
		return e.WorkflowType == workflowType && !e.StartedAt.Before(since)
	}) {
		counts.Total++
		if e.Status == domain.WorkflowFailed {
			counts.Failed++
		}
	}
	return counts, nil
}

func (s *Store) Insert(_ context.Context, alert *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *alert
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *Store) ListSince(_ context.Context, since time.Time) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Alert
	for _, a := range s.alerts {
		if !a.CreatedAt.Before(since) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) SupplierResponseTrend(_ context.Context, since time.Time) ([]ports.DailyRate, error) {
	type acc struct{ contacted, responded int }
	days := map[time.Time]*acc{}

	for _, e := range s.filter(func(e *domain.WorkflowExecution) bool {
		return !e.StartedAt.Before(since) && e.SuppliersContacted > 0
	}) {
		day := e.StartedAt.UTC().Truncate(24 * time.Hour)
		if days[day] == nil {
			days[day] = &acc{}
		}
		days[day].contacted += e.SuppliersContacted
		days[day].responded += e.SuppliersResponded
	}

	rates := make([]ports.DailyRate, 0, len(days))
	for day, a := range days {
		rates = append(rates, ports.DailyRate{Day: day, Rate: float64(a.responded) / float64(a.contacted)})
	}
	sortRates(rates)
	return rates, nil
}

func (s *Store) CustomerAcceptanceTrend(_ context.Context, since time.Time) ([]ports.DailyRate, error) {
	type acc struct{ decided, accepted int }
	days := map[time.Time]*acc{}

	for _, e := range s.filter(func(e *domain.WorkflowExecution) bool {
		return e.CustomerAccepted != nil && e.CustomerDecidedAt != nil && !e.CustomerDecidedAt.Before(since)
	}) {
		day := e.CustomerDecidedAt.UTC().Truncate(24 * time.Hour)
		if days[day] == nil {
			days[day] = &acc{}
		}
		days[day].decided++
		if *e.CustomerAccepted {
			days[day].accepted++
		}
	}

	rates := make([]ports.DailyRate, 0, len(days))
	for day, a := range days {
		rates = append(rates, ports.DailyRate{Day: day, Rate: float64(a.accepted) / float64(a.decided)})
	}
	sortRates(rates)
	return rates, nil
}

func (s *Store) filter(keep func(*domain.WorkflowExecution) bool) []*domain.WorkflowExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.WorkflowExecution
	for _, e := range s.executions {
		if keep(e) {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func sortRates(rates []ports.DailyRate) {
	sort.Slice(rates, func(i, j int) bool { return rates[i].Day.Before(rates[j].Day) })
}

func clone(e *domain.WorkflowExecution) *domain.WorkflowExecution {
	cp := *e

	cp.Steps = make(datatypes.JSONSlice[domain.WorkflowStep], len(e.Steps))
	copy(cp.Steps, e.Steps)
	cp.RecoveryActions = append(datatypes.JSONSlice[domain.RecoveryAction](nil), e.RecoveryActions...)
	cp.DiagnosticResults = append(datatypes.JSONSlice[domain.DiagnosticIssue](nil), e.DiagnosticResults...)
	cp.SuggestedFixes = append(datatypes.JSONSlice[string](nil), e.SuggestedFixes...)
	cp.AlertLog = append(datatypes.JSONSlice[string](nil), e.AlertLog...)

	if e.Metadata != nil {
		cp.Metadata = make(datatypes.JSONMap, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
