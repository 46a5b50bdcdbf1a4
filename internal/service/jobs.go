package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
)

// ErrJobNotFound marks a lookup for a job ID that does not exist.
var ErrJobNotFound = errors.New("job not found")

// JobStore is the persistence dependency of the job service and the
// workflow engine. The gorm repository implements it; tests use an
// in-memory store with the same guarded-update semantics.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Job, error)
	ListPending(ctx context.Context, limit int) ([]string, error)
	ListInFlight(ctx context.Context, limit int) ([]string, error)
	MarkStarted(ctx context.Context, id string, stage domain.Stage, progress int) (bool, error)
	AdvanceStage(ctx context.Context, id string, stage domain.Stage, progress int) (bool, error)
	SaveStageData(ctx context.Context, id string, data domain.JSONMap) (bool, error)
	Complete(ctx context.Context, id string, result domain.JSONMap) (bool, error)
	Fail(ctx context.Context, id string, message string) (bool, error)
	Cancel(ctx context.Context, id string) (bool, error)
	IncrementRetry(ctx context.Context, id string) error
}

// SubmitInput carries everything needed to run one interaction job.
type SubmitInput struct {
	UserID         string
	Mode           domain.Mode
	Variant        domain.Variant
	AudioKey       string
	ContactName    string
	EnabledSources []domain.SourceTag
}

// JobService owns the job lifecycle visible to the API: submission, status
// snapshots and cancellation. Stage execution belongs to the engine.
type JobService struct {
	store     JobStore
	enqueue   func(jobID string)
	interrupt func(jobID string)
}

// NewJobService creates a job service over the given store.
func NewJobService(store JobStore) *JobService {
	return &JobService{store: store}
}

// SetEnqueuer registers the embedded engine's queue. Without one, submitted
// jobs wait for a worker process poll to pick them up.
func (s *JobService) SetEnqueuer(enqueue func(jobID string)) {
	s.enqueue = enqueue
}

// SetInterrupter registers the embedded engine's in-flight cancellation.
func (s *JobService) SetInterrupter(interrupt func(jobID string)) {
	s.interrupt = interrupt
}

// CreateJob persists a new PENDING job and hands it to the engine.
func (s *JobService) CreateJob(ctx context.Context, in SubmitInput) (*domain.Job, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if in.AudioKey == "" {
		return nil, fmt.Errorf("audio reference is required")
	}
	variant := in.Variant
	if variant == "" {
		variant = domain.VariantMultiSource
	}

	sources := make([]interface{}, 0, len(in.EnabledSources))
	for _, tag := range in.EnabledSources {
		sources = append(sources, string(tag))
	}

	job := &domain.Job{
		ID:      uuid.NewString(),
		UserID:  in.UserID,
		Variant: variant,
		Stage:   domain.StagePending,
		InputData: domain.JSONMap{
			"audio_key":    in.AudioKey,
			"mode":         string(in.Mode),
			"contact_name": in.ContactName,
		},
		StageData: domain.JSONMap{},
	}
	if len(sources) > 0 {
		job.InputData["enabled_sources"] = sources
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldJobID:  job.ID,
		logger.FieldUserID: job.UserID,
		"variant":          string(job.Variant),
	}).Info(ctx, "job submitted")

	if s.enqueue != nil {
		s.enqueue(job.ID)
	}
	return job, nil
}

// GetJob returns the current job snapshot.
func (s *JobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListUserJobs returns the user's most recent jobs.
func (s *JobService) ListUserJobs(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

// CancelJob cancels a job, idempotently. Cancelling a job that already
// reached a terminal stage (including CANCELLED) changes nothing and
// returns the current state. In-flight stage work is interrupted after the
// row is marked, so a worker mid-stage loses its guarded commit and
// abandons the result.
func (s *JobService) CancelJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Stage.IsTerminal() {
		return job, nil
	}

	changed, err := s.store.Cancel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}
	if changed {
		logger.With(logger.Fields{logger.FieldJobID: id}).Info(ctx, "job cancelled")
		if s.interrupt != nil {
			s.interrupt(id)
		}
	}
	return s.GetJob(ctx, id)
}
