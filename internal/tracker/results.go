package tracker

import (
	"quote-sentinel/internal/bottleneck"
	"quote-sentinel/internal/domain"
)

// StepUpdate is one step-progress report from the pipeline driver.
type StepUpdate struct {
	WorkflowID string
	StepName   string
	Status     domain.StepStatus
	// Error is the raw error text of a failed step. Err, when set, lets the
	// diagnostics recognise typed errors.
	Error    string
	Err      error
	Metadata map[string]any
}

// Every tracker entry point reports failures in its result instead of
// returning them. Err carries the cause for callers that map it.

type StartResult struct {
	WorkflowID string `json:"workflow_id"`
	Created    bool   `json:"created"`
	Duplicate  bool   `json:"duplicate"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}

type StepResult struct {
	WorkflowID        string                `json:"workflow_id"`
	StepName          string                `json:"step_name"`
	Applied           bool                  `json:"applied"`
	Status            domain.WorkflowStatus `json:"workflow_status,omitempty"`
	DurationSeconds   *int64                `json:"duration_seconds,omitempty"`
	Bottleneck        *bottleneck.Violation `json:"bottleneck,omitempty"`
	Issue             domain.IssueKind      `json:"issue,omitempty"`
	CanAutoRecover    bool                  `json:"can_auto_recover"`
	RecoveryScheduled bool                  `json:"recovery_scheduled"`
	AlertIDs          []string              `json:"alert_ids,omitempty"`
	Error             string                `json:"error,omitempty"`
	Err               error                 `json:"-"`
}

type SupplierResult struct {
	WorkflowID  string `json:"workflow_id"`
	Applied     bool   `json:"applied"`
	AlertRaised bool   `json:"alert_raised"`
	AlertID     string `json:"alert_id,omitempty"`
	Error       string `json:"error,omitempty"`
	Err         error  `json:"-"`
}

type CompleteResult struct {
	WorkflowID string                `json:"workflow_id"`
	Applied    bool                  `json:"applied"`
	Status     domain.WorkflowStatus `json:"workflow_status,omitempty"`
	Error      string                `json:"error,omitempty"`
	Err        error                 `json:"-"`
}

type DecisionResult struct {
	WorkflowID string `json:"workflow_id"`
	Applied    bool   `json:"applied"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
}
