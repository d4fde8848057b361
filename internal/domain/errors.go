package domain

import (
	"errors"
	"fmt"
)

var (
	ErrWorkflowNotFound      = errors.New("workflow not found")
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")
	// ErrWorkflowClosed is returned for step mutations after Complete.
	ErrWorkflowClosed     = errors.New("workflow is closed")
	ErrStepAlreadyRunning = errors.New("another step is already in progress")
	ErrVersionConflict    = errors.New("workflow was modified concurrently")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidType        = errors.New("invalid workflow type")
)

// WorkflowError wraps an error with the operation and workflow it concerns.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
