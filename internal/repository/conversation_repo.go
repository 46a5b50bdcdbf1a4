package repository

import (
	"context"

	"github.com/calebwren/rapport/internal/domain"
	"gorm.io/gorm"
)

// ConversationRepository handles persisted conversation records.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts a new conversation record.
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// GetByJobID retrieves the conversation stored by a workflow run.
func (r *ConversationRepository) GetByJobID(ctx context.Context, jobID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.db.WithContext(ctx).First(&conv, "job_id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListByUser retrieves the most recent conversations for a user.
func (r *ConversationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	var convs []domain.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}
