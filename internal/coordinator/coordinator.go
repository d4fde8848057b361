package coordinator

import (
	"context"
	"fmt"

	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/domain"
	"quote-sentinel/internal/tracker"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// StepTracker is the part of the tracker the coordinator drives.
type StepTracker interface {
	UpdateStepProgress(ctx context.Context, u tracker.StepUpdate) tracker.StepResult
	UpdateSupplierMetrics(ctx context.Context, workflowID string, contacted, responded int) tracker.SupplierResult
}

// Coordinator consumes step events from the pipeline driver and feeds them
// into the tracker.
type Coordinator struct {
	bus      ports.StepEventBus
	tracker  StepTracker
	validate *validator.Validate
	logger   *zap.Logger
}

func NewCoordinator(bus ports.StepEventBus, t StepTracker, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		bus:      bus,
		tracker:  t,
		validate: validator.New(),
		logger:   logger,
	}
}

// Start blocks, listening for events until ctx is done. Run it as a goroutine.
func (c *Coordinator) Start(ctx context.Context) error {
	events, err := c.bus.SubscribeToStepEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to step events: %w", err)
	}
	c.logger.Info("coordinator started, listening for step events")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator shutting down")
			return nil

		case event, ok := <-events:
			if !ok {
				c.logger.Info("step event stream closed")
				return nil
			}
			c.Handle(ctx, event)
		}
	}
}

// Handle applies one event. Supplier counters carried in the metadata
// (suppliers_contacted, suppliers_responded) are applied as well.
func (c *Coordinator) Handle(ctx context.Context, event domain.StepEvent) tracker.StepResult {
	if err := c.validate.Struct(event); err != nil {
		c.logger.Warn("dropping invalid step event",
			zap.String("workflow_id", event.WorkflowID), zap.Error(err))
		return tracker.StepResult{WorkflowID: event.WorkflowID, StepName: event.StepName, Error: err.Error(), Err: err}
	}

	result := c.tracker.UpdateStepProgress(ctx, tracker.StepUpdate{
		WorkflowID: event.WorkflowID,
		StepName:   event.StepName,
		Status:     event.Status,
		Error:      event.Error,
		Metadata:   event.Metadata,
	})

	if contacted, ok := intField(event.Metadata, "suppliers_contacted"); ok {
		responded, _ := intField(event.Metadata, "suppliers_responded")
		c.tracker.UpdateSupplierMetrics(ctx, event.WorkflowID, contacted, responded)
	}

	c.logger.Debug("step event applied",
		zap.String("workflow_id", event.WorkflowID),
		zap.String("step", event.StepName),
		zap.String("status", string(event.Status)),
		zap.Bool("applied", result.Applied))

	return result
}

// intField reads a counter from JSON-decoded metadata.
func intField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}
