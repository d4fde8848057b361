package dto

type StartWorkflowRequest struct {
	WorkflowID     string `json:"workflow_id" binding:"required,max=100"`
	WorkflowType   string `json:"workflow_type" binding:"required,oneof=quote_automation manual_quote approval follow_up"`
	EmailID        string `json:"email_id" binding:"max=100"`
	QuoteRequestID string `json:"quote_request_id" binding:"max=100"`
	CustomerID     string `json:"customer_id" binding:"max=100"`
}

type StepProgressRequest struct {
	StepName string         `json:"step_name" binding:"required,max=100"`
	Status   string         `json:"status" binding:"required,oneof=pending in_progress completed failed skipped"`
	Error    string         `json:"error"`
	Metadata map[string]any `json:"metadata"`
}

type SupplierMetricsRequest struct {
	Contacted int `json:"suppliers_contacted" binding:"gte=0"`
	Responded int `json:"suppliers_responded" binding:"gte=0,ltefield=Contacted"`
}

type CompleteWorkflowRequest struct {
	Status   string         `json:"status" binding:"required,oneof=completed failed"`
	Metadata map[string]any `json:"metadata"`
}

type CustomerDecisionRequest struct {
	Accepted *bool `json:"accepted" binding:"required"`
}
