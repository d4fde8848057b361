package domain

import "time"

// StepEvent is published by the pipeline driver whenever a step changes
// status. The coordinator feeds it into the tracker.
type StepEvent struct {
	WorkflowID string         `json:"workflow_id" validate:"required"`
	StepName   string         `json:"step_name" validate:"required"`
	Status     StepStatus     `json:"status" validate:"required"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// AlertRaisedEvent is what the operator channel receives.
type AlertRaisedEvent struct {
	AlertID    string         `json:"alert_id"`
	Type       AlertType      `json:"type"`
	Severity   Severity       `json:"severity"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	RaisedAt   time.Time      `json:"raised_at"`
}

func NewAlertRaisedEvent(a *Alert) AlertRaisedEvent {
	ev := AlertRaisedEvent{
		AlertID:  a.ID.String(),
		Type:     a.Type,
		Severity: a.Severity,
		Message:  a.Message,
		Details:  a.Details,
		RaisedAt: a.CreatedAt,
	}
	if a.WorkflowID != nil {
		ev.WorkflowID = *a.WorkflowID
	}
	return ev
}
