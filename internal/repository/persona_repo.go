package repository

import (
	"context"

	"github.com/calebwren/rapport/internal/domain"
	"gorm.io/gorm"
)

// PersonaRepository handles persona node rows. The embeddings themselves
// live in the vector index; these rows are the durable labels and weights.
type PersonaRepository struct {
	db *gorm.DB
}

// NewPersonaRepository creates a new PersonaRepository.
func NewPersonaRepository(db *gorm.DB) *PersonaRepository {
	return &PersonaRepository{db: db}
}

// CreateBatch inserts a set of persona nodes in one transaction.
func (r *PersonaRepository) CreateBatch(ctx context.Context, nodes []domain.PersonaNode) error {
	if len(nodes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&nodes).Error
}

// ListByUser retrieves all persona nodes for a user.
func (r *PersonaRepository) ListByUser(ctx context.Context, userID string) ([]domain.PersonaNode, error) {
	var nodes []domain.PersonaNode
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&nodes).Error
	return nodes, err
}

// DeleteByUser removes all persona nodes for a user, returning the point IDs
// that should also be removed from the vector index.
func (r *PersonaRepository) DeleteByUser(ctx context.Context, userID string) ([]string, error) {
	var pointIDs []string
	if err := r.db.WithContext(ctx).
		Model(&domain.PersonaNode{}).
		Where("user_id = ?", userID).
		Pluck("point_id", &pointIDs).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.PersonaNode{}).Error; err != nil {
		return nil, err
	}
	return pointIDs, nil
}
