package repository

import (
	"context"
	"time"

	"quote-sentinel/internal/core/ports"

	"gorm.io/gorm"
)

type trendRepository struct {
	db *gorm.DB
}

// NewTrendRepository reads daily aggregates straight off workflow_executions.
func NewTrendRepository(db *gorm.DB) ports.TrendSource {
	return &trendRepository{db: db}
}

type dailyRateRow struct {
	Day  time.Time
	Rate float64
}

func (r *trendRepository) SupplierResponseTrend(ctx context.Context, since time.Time) ([]ports.DailyRate, error) {
	query := `
		SELECT date_trunc('day', started_at) AS day,
		       SUM(suppliers_responded)::float / SUM(suppliers_contacted) AS rate
		FROM workflow_executions
		WHERE started_at >= ? AND suppliers_contacted > 0
		GROUP BY 1
		ORDER BY 1
	`
	return r.scanRates(ctx, query, since)
}

func (r *trendRepository) CustomerAcceptanceTrend(ctx context.Context, since time.Time) ([]ports.DailyRate, error) {
	query := `
		SELECT date_trunc('day', customer_decided_at) AS day,
		       AVG(CASE WHEN customer_accepted THEN 1.0 ELSE 0.0 END) AS rate
		FROM workflow_executions
		WHERE customer_decided_at >= ? AND customer_accepted IS NOT NULL
		GROUP BY 1
		ORDER BY 1
	`
	return r.scanRates(ctx, query, since)
}

func (r *trendRepository) scanRates(ctx context.Context, query string, since time.Time) ([]ports.DailyRate, error) {
	var rows []dailyRateRow
	if err := r.db.WithContext(ctx).Raw(query, since).Scan(&rows).Error; err != nil {
		return nil, err
	}

	rates := make([]ports.DailyRate, 0, len(rows))
	for _, row := range rows {
		rates = append(rates, ports.DailyRate{Day: row.Day, Rate: row.Rate})
	}
	return rates, nil
}
