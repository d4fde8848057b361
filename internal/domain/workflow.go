package domain

import (
	"time"

	"gorm.io/datatypes"
)

type WorkflowType string

const (
	WorkflowQuoteAutomation WorkflowType = "quote_automation"
	WorkflowManualQuote     WorkflowType = "manual_quote"
	WorkflowApproval        WorkflowType = "approval"
	WorkflowFollowUp        WorkflowType = "follow_up"
)

func (t WorkflowType) Valid() bool {
	switch t {
	case WorkflowQuoteAutomation, WorkflowManualQuote, WorkflowApproval, WorkflowFollowUp:
		return true
	}
	return false
}

type WorkflowStatus string

const (
	WorkflowInitializing      WorkflowStatus = "initializing"
	WorkflowDetecting         WorkflowStatus = "detecting"
	WorkflowSupplierContacted WorkflowStatus = "supplier_contacted"
	WorkflowAwaitingResponses WorkflowStatus = "awaiting_responses"
	WorkflowGeneratingQuote   WorkflowStatus = "generating_quote"
	WorkflowRecovering        WorkflowStatus = "recovering"
	WorkflowCompleted         WorkflowStatus = "completed"
	WorkflowFailed            WorkflowStatus = "failed"
	WorkflowStuck             WorkflowStatus = "stuck"
)

// ActiveStatuses are the statuses the stuck-workflow sweep inspects.
var ActiveStatuses = []WorkflowStatus{
	WorkflowInitializing,
	WorkflowDetecting,
	WorkflowSupplierContacted,
	WorkflowAwaitingResponses,
	WorkflowGeneratingQuote,
	WorkflowRecovering,
}

// CorrelatedIDs links a workflow run to the business records it operates on.
type CorrelatedIDs struct {
	EmailID        string `json:"email_id,omitempty"`
	QuoteRequestID string `json:"quote_request_id,omitempty"`
	CustomerID     string `json:"customer_id,omitempty"`
}

type WorkflowExecution struct {
	WorkflowID   string         `gorm:"type:varchar(100);primaryKey"`
	WorkflowType WorkflowType   `gorm:"type:varchar(30);index;not null"`
	Status       WorkflowStatus `gorm:"type:varchar(30);index;default:'initializing'"`

	EmailID        string `gorm:"type:varchar(100);index"`
	QuoteRequestID string `gorm:"type:varchar(100);index"`
	CustomerID     string `gorm:"type:varchar(100)"`

	Steps datatypes.JSONSlice[WorkflowStep] `gorm:"type:jsonb"`

	// Phase durations in seconds
	DetectionDuration       *int64
	SupplierContactDuration *int64
	ResponseWaitDuration    *int64
	QuoteGenerationDuration *int64
	ApprovalDuration        *int64
	SendDuration            *int64

	SuppliersContacted int `gorm:"default:0"`
	SuppliersResponded int `gorm:"default:0"`

	FailureReason string `gorm:"type:text"`
	FailureStep   string `gorm:"type:varchar(100)"`
	FailureCount  int    `gorm:"default:0"`
	LastError     string `gorm:"type:text"`
	ErrorStack    string `gorm:"type:text"`

	BottleneckDetected bool   `gorm:"default:false;index"`
	BottleneckStep     string `gorm:"type:varchar(100)"`
	BottleneckDuration int64
	BottleneckExcess   int64

	RecoveryAttempted  bool                                `gorm:"default:false"`
	RecoveryActions    datatypes.JSONSlice[RecoveryAction] `gorm:"type:jsonb"`
	RecoverySuccessful *bool
	DiagnosticResults  datatypes.JSONSlice[DiagnosticIssue] `gorm:"type:jsonb"`
	SuggestedFixes     datatypes.JSONSlice[string]          `gorm:"type:jsonb"`

	AlertTriggered  bool      `gorm:"default:false;index"`
	AlertType       AlertType `gorm:"type:varchar(40)"`
	AlertSentAt     *time.Time
	AlertResolvedAt *time.Time
	AlertLog        datatypes.JSONSlice[string] `gorm:"type:jsonb"`

	CircuitBreakerTriggered bool   `gorm:"default:false"`
	CircuitBreakerService   string `gorm:"type:varchar(100)"`

	CustomerAccepted  *bool
	CustomerDecidedAt *time.Time

	Metadata datatypes.JSONMap `gorm:"type:jsonb"`

	StartedAt   time.Time `gorm:"index;not null"`
	CompletedAt *time.Time
	Version     int `gorm:"default:1"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WorkflowExecution) TableName() string {
	return "workflow_executions"
}

// --- FACTORY ---
func NewWorkflowExecution(workflowID string, workflowType WorkflowType, ids CorrelatedIDs, now time.Time) *WorkflowExecution {
	return &WorkflowExecution{
		WorkflowID:     workflowID,
		WorkflowType:   workflowType,
		Status:         WorkflowInitializing,
		EmailID:        ids.EmailID,
		QuoteRequestID: ids.QuoteRequestID,
		CustomerID:     ids.CustomerID,
		Steps:          datatypes.JSONSlice[WorkflowStep]{},
		Metadata:       datatypes.JSONMap{},
		StartedAt:      now,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// --- METHODS ---

// IsFinished reports whether the workflow has reached a status that the
// tracker will no longer advance.
func (w *WorkflowExecution) IsFinished() bool {
	return w.Status == WorkflowCompleted || w.Status == WorkflowFailed
}

// IsClosed reports whether Complete has been called on the record.
func (w *WorkflowExecution) IsClosed() bool {
	return w.CompletedAt != nil
}

func (w *WorkflowExecution) IsActive() bool {
	for _, s := range ActiveStatuses {
		if w.Status == s {
			return true
		}
	}
	return false
}

func (w *WorkflowExecution) Step(name string) (*WorkflowStep, bool) {
	for i := range w.Steps {
		if w.Steps[i].Name == name {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// RunningStep returns the step currently in progress, if any.
func (w *WorkflowExecution) RunningStep() (*WorkflowStep, bool) {
	for i := range w.Steps {
		if w.Steps[i].Status == StepInProgress {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

func (w *WorkflowExecution) PhaseDuration(phase Phase) *int64 {
	switch phase {
	case PhaseDetection:
		return w.DetectionDuration
	case PhaseSupplierContact:
		return w.SupplierContactDuration
	case PhaseResponseWait:
		return w.ResponseWaitDuration
	case PhaseQuoteGeneration:
		return w.QuoteGenerationDuration
	case PhaseApproval:
		return w.ApprovalDuration
	case PhaseSend:
		return w.SendDuration
	}
	return nil
}

func (w *WorkflowExecution) SetPhaseDuration(phase Phase, seconds int64) {
	v := seconds
	switch phase {
	case PhaseDetection:
		w.DetectionDuration = &v
	case PhaseSupplierContact:
		w.SupplierContactDuration = &v
	case PhaseResponseWait:
		w.ResponseWaitDuration = &v
	case PhaseQuoteGeneration:
		w.QuoteGenerationDuration = &v
	case PhaseApproval:
		w.ApprovalDuration = &v
	case PhaseSend:
		w.SendDuration = &v
	}
}

func (w *WorkflowExecution) HasAlert(key string) bool {
	for _, k := range w.AlertLog {
		if k == key {
			return true
		}
	}
	return false
}

func (w *WorkflowExecution) MergeMetadata(m map[string]any) {
	if len(m) == 0 {
		return
	}
	if w.Metadata == nil {
		w.Metadata = datatypes.JSONMap{}
	}
	for k, v := range m {
		w.Metadata[k] = v
	}
}
