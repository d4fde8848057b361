package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/domain"

	"gorm.io/gorm"
)

type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository creates a new instance of WorkflowRepository
func NewWorkflowRepository(db *gorm.DB) ports.WorkflowRepository {
	return &workflowRepository{db: db}
}

func (r *workflowRepository) Create(ctx context.Context, execution *domain.WorkflowExecution) error {
	err := r.db.WithContext(ctx).Create(execution).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrWorkflowAlreadyExists
	}
	return err
}

func (r *workflowRepository) GetByID(ctx context.Context, workflowID string) (*domain.WorkflowExecution, error) {
	var execution domain.WorkflowExecution
	err := r.db.WithContext(ctx).Where("workflow_id = ?", workflowID).First(&execution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &execution, nil
}

// Save writes every column back, guarded by the version that was read. A
// concurrent writer that saved first bumps the version, so this update
// matches no row and the caller gets ErrVersionConflict.
func (r *workflowRepository) Save(ctx context.Context, execution *domain.WorkflowExecution) error {
	readVersion := execution.Version
	execution.Version = readVersion + 1

	result := r.db.WithContext(ctx).
		Model(execution).
		Where("version = ?", readVersion).
		Select("*").
		Omit("created_at").
		Updates(execution)

	if result.Error != nil {
		execution.Version = readVersion
		return fmt.Errorf("failed to save workflow %s: %w", execution.WorkflowID, result.Error)
	}

	if result.RowsAffected == 0 {
		execution.Version = readVersion
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *workflowRepository) ListActive(ctx context.Context) ([]*domain.WorkflowExecution, error) {
	var executions []*domain.WorkflowExecution
	err := r.db.WithContext(ctx).
		Where("status IN ?", domain.ActiveStatuses).
		Order("started_at").
		Find(&executions).Error
	return executions, err
}

func (r *workflowRepository) ListStartedSince(ctx context.Context, since time.Time) ([]*domain.WorkflowExecution, error) {
	var executions []*domain.WorkflowExecution
	err := r.db.WithContext(ctx).
		Where("started_at >= ?", since).
		Order("started_at").
		Find(&executions).Error
	return executions, err
}

func (r *workflowRepository) CountOutcomes(ctx context.Context, workflowType domain.WorkflowType, since time.Time) (ports.OutcomeCounts, error) {
	var counts ports.OutcomeCounts

	err := r.db.WithContext(ctx).
		Model(&domain.WorkflowExecution{}).
		Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE status = ?) AS failed", domain.WorkflowFailed).
		Where("workflow_type = ? AND started_at >= ?", workflowType, since).
		Scan(&counts).Error

	return counts, err
}
