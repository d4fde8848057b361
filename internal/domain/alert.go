package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AlertType string

const (
	AlertWorkflowStuck           AlertType = "workflow_stuck"
	AlertSupplierNonResponse     AlertType = "supplier_non_response"
	AlertDecliningAcceptanceRate AlertType = "declining_acceptance_rate"
	AlertHighFailureRate         AlertType = "high_failure_rate"
	AlertBottleneckDetected      AlertType = "bottleneck_detected"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alert is append-only. Resolution lives on the owning workflow row.
type Alert struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Type       AlertType         `gorm:"type:varchar(40);index;not null" json:"type"`
	Severity   Severity          `gorm:"type:varchar(20);not null" json:"severity"`
	WorkflowID *string           `gorm:"type:varchar(100);index" json:"workflow_id,omitempty"`
	Message    string            `gorm:"type:text;not null" json:"message"`
	Details    datatypes.JSONMap `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt  time.Time         `gorm:"index" json:"created_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

func NewAlert(alertType AlertType, severity Severity, message string, details map[string]any) *Alert {
	return &Alert{
		ID:       uuid.New(),
		Type:     alertType,
		Severity: severity,
		Message:  message,
		Details:  datatypes.JSONMap(details),
	}
}

// DedupKey identifies an alert within one workflow's alert log. Bottleneck
// alerts are keyed per step so a second slow step still alerts.
func (a *Alert) DedupKey() string {
	if a.Type == AlertBottleneckDetected {
		if step, ok := a.Details["step"].(string); ok && step != "" {
			return string(a.Type) + ":" + step
		}
	}
	return string(a.Type)
}
