package repository

import (
	"context"
	"time"

	"github.com/calebwren/rapport/internal/domain"
	"gorm.io/gorm"
)

// terminalStages are the stages after which a job row is immutable.
var terminalStages = []domain.Stage{
	domain.StageSuccess,
	domain.StageError,
	domain.StageCancelled,
}

// JobRepository handles workflow job persistence. All mutating operations on
// an existing job are conditional UPDATEs guarded on the row still being
// non-terminal, so a stage commit racing a cancellation loses cleanly: the
// loser sees zero rows affected and abandons its write.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByUser retrieves the most recent jobs for a user.
func (r *JobRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	var jobs []domain.Job
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// ListPending returns IDs of jobs still waiting in PENDING, oldest first.
// The workflow engine polls this to pick up submitted and recovered work.
func (r *JobRepository) ListPending(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("stage = ?", domain.StagePending).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// ListInFlight returns IDs of jobs in a non-terminal, non-pending stage.
// Used at engine startup to resume work orphaned by a previous process.
func (r *JobRepository) ListInFlight(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("stage NOT IN ? AND stage <> ?", terminalStages, domain.StagePending).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// MarkStarted records the first stage transition out of PENDING, setting
// StartedAt. Returns false if the job was already terminal or started.
func (r *JobRepository) MarkStarted(ctx context.Context, id string, stage domain.Stage, progress int) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND stage = ?", id, domain.StagePending).
		Updates(map[string]interface{}{
			"stage":      stage,
			"progress":   progress,
			"started_at": &now,
		})
	return res.RowsAffected > 0, res.Error
}

// AdvanceStage moves a non-terminal job to the given stage and progress.
// Progress never decreases: the guard rejects writes below the stored value.
// Returns false when the row was terminal (cancelled underneath the worker)
// or the progress guard failed.
func (r *JobRepository) AdvanceStage(ctx context.Context, id string, stage domain.Stage, progress int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND stage NOT IN ? AND progress <= ?", id, terminalStages, progress).
		Updates(map[string]interface{}{
			"stage":    stage,
			"progress": progress,
		})
	return res.RowsAffected > 0, res.Error
}

// SaveStageData persists the accumulating stage-to-stage record.
// Returns false if the job is already terminal.
func (r *JobRepository) SaveStageData(ctx context.Context, id string, data domain.JSONMap) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND stage NOT IN ?", id, terminalStages).
		Update("stage_data", data)
	return res.RowsAffected > 0, res.Error
}

// Complete marks a job SUCCESS with its final result payload.
// Returns false if the job is already terminal.
func (r *JobRepository) Complete(ctx context.Context, id string, result domain.JSONMap) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND stage NOT IN ?", id, terminalStages).
		Updates(map[string]interface{}{
			"stage":        domain.StageSuccess,
			"progress":     100,
			"result":       result,
			"completed_at": &now,
		})
	return res.RowsAffected > 0, res.Error
}

// Fail marks a job ERROR with a human-readable reason.
// Returns false if the job is already terminal.
func (r *JobRepository) Fail(ctx context.Context, id string, message string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND stage NOT IN ?", id, terminalStages).
		Updates(map[string]interface{}{
			"stage":         domain.StageError,
			"error_message": message,
			"completed_at":  &now,
		})
	return res.RowsAffected > 0, res.Error
}

// Cancel marks a non-terminal job CANCELLED. Returns false when the job was
// already terminal, which callers treat as "nothing to do", not an error.
func (r *JobRepository) Cancel(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND stage NOT IN ?", id, terminalStages).
		Updates(map[string]interface{}{
			"stage":        domain.StageCancelled,
			"completed_at": &now,
		})
	return res.RowsAffected > 0, res.Error
}

// IncrementRetry bumps the retry counter for a non-terminal job.
func (r *JobRepository) IncrementRetry(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND stage NOT IN ?", id, terminalStages).
		Update("retry_count", gorm.Expr("retry_count + 1")).Error
}
