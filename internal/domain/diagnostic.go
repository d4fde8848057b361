package domain

import "time"

// IssueKind enumerates the failure signatures the diagnostic engine knows.
type IssueKind string

const (
	IssueCircuitBreakerTriggered IssueKind = "circuit_breaker_triggered"
	IssueNoSuppliersFound        IssueKind = "no_suppliers_found"
	IssueTimeout                 IssueKind = "timeout"
	IssueEmailSendFailure        IssueKind = "email_send_failure"
	IssueQuoteGenerationFailure  IssueKind = "quote_generation_failure"
	IssueZeroSupplierResponses   IssueKind = "zero_supplier_responses"

	// IssueUnclassified is reported when no rule matched. It is never
	// persisted on the execution row.
	IssueUnclassified IssueKind = "unclassified"
)

type IssueSeverity string

const (
	IssueLow      IssueSeverity = "low"
	IssueMedium   IssueSeverity = "medium"
	IssueHigh     IssueSeverity = "high"
	IssueCritical IssueSeverity = "critical"
)

type DiagnosticIssue struct {
	Issue                 IssueKind     `json:"issue"`
	Severity              IssueSeverity `json:"severity"`
	Description           string        `json:"description"`
	SuggestedFixes        []string      `json:"suggested_fixes"`
	AutomatedFixAvailable bool          `json:"automated_fix_available"`
}

type ActionKind string

const (
	ActionWaitForCircuitBreakerReset ActionKind = "wait_for_circuit_breaker_reset"
	ActionRetryWithExtendedTimeout   ActionKind = "retry_with_extended_timeout"
	ActionRetryEmailSend             ActionKind = "retry_email_send"
	ActionSendSupplierFollowUps      ActionKind = "send_supplier_follow_ups"
)

// RecoveryAction describes one automated remediation step. Only the fields
// relevant to Kind are set.
type RecoveryAction struct {
	Kind           ActionKind    `json:"kind"`
	Delay          time.Duration `json:"delay,omitempty"`
	Service        string        `json:"service,omitempty"`
	Multiplier     float64       `json:"multiplier,omitempty"`
	Backoff        time.Duration `json:"backoff,omitempty"`
	QuoteRequestID string        `json:"quote_request_id,omitempty"`
}
