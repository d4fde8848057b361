package ports

import (
	"context"
	"errors"
	"time"

	"quote-sentinel/internal/domain"
)

// WorkflowRepository represents the workflow execution store
type WorkflowRepository interface {
	// Create a new execution. Fails with domain.ErrWorkflowAlreadyExists on duplicate id.
	Create(ctx context.Context, execution *domain.WorkflowExecution) error

	// Get one execution by its workflow id
	GetByID(ctx context.Context, workflowID string) (*domain.WorkflowExecution, error)

	// Save writes the whole row back if its version still matches the one that
	// was read, then bumps execution.Version. Fails with domain.ErrVersionConflict otherwise.
	Save(ctx context.Context, execution *domain.WorkflowExecution) error

	// List executions that are still progressing (see domain.ActiveStatuses)
	ListActive(ctx context.Context) ([]*domain.WorkflowExecution, error)

	// List executions started at or after since
	ListStartedSince(ctx context.Context, since time.Time) ([]*domain.WorkflowExecution, error)

	// Count executions of a type started since, split by failed / total
	CountOutcomes(ctx context.Context, workflowType domain.WorkflowType, since time.Time) (OutcomeCounts, error)
}

type OutcomeCounts struct {
	Total  int64
	Failed int64
}

// AlertRepository is the append-only alert log
type AlertRepository interface {
	Insert(ctx context.Context, alert *domain.Alert) error
	ListSince(ctx context.Context, since time.Time) ([]*domain.Alert, error)
}

// DailyRate is one day of an aggregated trend.
type DailyRate struct {
	Day  time.Time
	Rate float64
}

// TrendSource is the aggregated trend view the rate sweeps read from
type TrendSource interface {
	// Daily supplier response rate (responded / contacted) for days since the given time
	SupplierResponseTrend(ctx context.Context, since time.Time) ([]DailyRate, error)

	// Daily customer acceptance rate (accepted / decided) for days since the given time
	CustomerAcceptanceTrend(ctx context.Context, since time.Time) ([]DailyRate, error)
}

// AlertNotifier delivers raised alerts to the operator channel
type AlertNotifier interface {
	PublishAlert(ctx context.Context, event domain.AlertRaisedEvent) error
}

// StepEventBus carries step-progress events from the pipeline driver
type StepEventBus interface {
	PublishStepEvent(ctx context.Context, event domain.StepEvent) error
	SubscribeToStepEvents(ctx context.Context) (<-chan domain.StepEvent, error)
}

// ErrQueueEmpty is returned by Pop when nothing arrived while it blocked.
var ErrQueueEmpty = errors.New("queue empty")

// FollowUpQueue hands supplier follow-up requests to the downstream mailer
type FollowUpQueue interface {
	// Push a quote request id to the follow-up list
	Push(ctx context.Context, quoteRequestID string) error

	// Wait (Block) for a quote request id; ErrQueueEmpty if none arrived
	Pop(ctx context.Context) (string, error)
}
