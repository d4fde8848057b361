package repository

import (
	"context"
	"time"

	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/domain"

	"gorm.io/gorm"
)

type alertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new instance of AlertRepository
func NewAlertRepository(db *gorm.DB) ports.AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) Insert(ctx context.Context, alert *domain.Alert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *alertRepository) ListSince(ctx context.Context, since time.Time) ([]*domain.Alert, error) {
	var alerts []*domain.Alert
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at").
		Find(&alerts).Error
	return alerts, err
}
