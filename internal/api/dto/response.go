package dto

import (
	"time"

	"quote-sentinel/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// WorkflowResponse is the API view of an execution row.
type WorkflowResponse struct {
	WorkflowID     string                `json:"workflow_id"`
	WorkflowType   domain.WorkflowType   `json:"workflow_type"`
	Status         domain.WorkflowStatus `json:"status"`
	EmailID        string                `json:"email_id,omitempty"`
	QuoteRequestID string                `json:"quote_request_id,omitempty"`
	CustomerID     string                `json:"customer_id,omitempty"`

	Steps          []domain.WorkflowStep  `json:"steps"`
	PhaseDurations map[domain.Phase]int64 `json:"phase_durations"`

	SuppliersContacted int `json:"suppliers_contacted"`
	SuppliersResponded int `json:"suppliers_responded"`

	FailureReason string `json:"failure_reason,omitempty"`
	FailureStep   string `json:"failure_step,omitempty"`
	FailureCount  int    `json:"failure_count"`
	LastError     string `json:"last_error,omitempty"`

	BottleneckDetected bool   `json:"bottleneck_detected"`
	BottleneckStep     string `json:"bottleneck_step,omitempty"`
	BottleneckDuration int64  `json:"bottleneck_duration,omitempty"`
	BottleneckExcess   int64  `json:"bottleneck_excess,omitempty"`

	RecoveryAttempted  bool                     `json:"recovery_attempted"`
	RecoveryActions    []domain.RecoveryAction  `json:"recovery_actions,omitempty"`
	RecoverySuccessful *bool                    `json:"recovery_successful,omitempty"`
	DiagnosticResults  []domain.DiagnosticIssue `json:"diagnostic_results,omitempty"`
	SuggestedFixes     []string                 `json:"suggested_fixes,omitempty"`

	AlertTriggered  bool             `json:"alert_triggered"`
	AlertType       domain.AlertType `json:"alert_type,omitempty"`
	AlertSentAt     *time.Time       `json:"alert_sent_at,omitempty"`
	AlertResolvedAt *time.Time       `json:"alert_resolved_at,omitempty"`

	CircuitBreakerTriggered bool   `json:"circuit_breaker_triggered"`
	CircuitBreakerService   string `json:"circuit_breaker_service,omitempty"`

	CustomerAccepted *bool          `json:"customer_accepted,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Version     int        `json:"version"`
}

func NewWorkflowResponse(e *domain.WorkflowExecution) WorkflowResponse {
	phases := make(map[domain.Phase]int64, len(domain.Phases))
	for _, p := range domain.Phases {
		if d := e.PhaseDuration(p); d != nil {
			phases[p] = *d
		}
	}

	return WorkflowResponse{
		WorkflowID:              e.WorkflowID,
		WorkflowType:            e.WorkflowType,
		Status:                  e.Status,
		EmailID:                 e.EmailID,
		QuoteRequestID:          e.QuoteRequestID,
		CustomerID:              e.CustomerID,
		Steps:                   e.Steps,
		PhaseDurations:          phases,
		SuppliersContacted:      e.SuppliersContacted,
		SuppliersResponded:      e.SuppliersResponded,
		FailureReason:           e.FailureReason,
		FailureStep:             e.FailureStep,
		FailureCount:            e.FailureCount,
		LastError:               e.LastError,
		BottleneckDetected:      e.BottleneckDetected,
		BottleneckStep:          e.BottleneckStep,
		BottleneckDuration:      e.BottleneckDuration,
		BottleneckExcess:        e.BottleneckExcess,
		RecoveryAttempted:       e.RecoveryAttempted,
		RecoveryActions:         e.RecoveryActions,
		RecoverySuccessful:      e.RecoverySuccessful,
		DiagnosticResults:       e.DiagnosticResults,
		SuggestedFixes:          e.SuggestedFixes,
		AlertTriggered:          e.AlertTriggered,
		AlertType:               e.AlertType,
		AlertSentAt:             e.AlertSentAt,
		AlertResolvedAt:         e.AlertResolvedAt,
		CircuitBreakerTriggered: e.CircuitBreakerTriggered,
		CircuitBreakerService:   e.CircuitBreakerService,
		CustomerAccepted:        e.CustomerAccepted,
		Metadata:                e.Metadata,
		StartedAt:               e.StartedAt,
		CompletedAt:             e.CompletedAt,
		Version:                 e.Version,
	}
}

type CancelRecoveryResponse struct {
	WorkflowID string `json:"workflow_id"`
	Cancelled  bool   `json:"cancelled"`
}

type BreakerResetResponse struct {
	Reset []string `json:"reset"`
}
