package repository

import (
	"context"

	"github.com/calebwren/rapport/internal/domain"
	"gorm.io/gorm"
)

// MetricRepository handles interaction metric rows.
type MetricRepository struct {
	db *gorm.DB
}

// NewMetricRepository creates a new MetricRepository.
func NewMetricRepository(db *gorm.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// Create inserts a new interaction metric record.
func (r *MetricRepository) Create(ctx context.Context, m *domain.InteractionMetric) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListByUser retrieves the most recent metrics for a user.
func (r *MetricRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.InteractionMetric, error) {
	if limit <= 0 {
		limit = 50
	}
	var metrics []domain.InteractionMetric
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&metrics).Error
	return metrics, err
}
