package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
)

// PersonaStore is the persistence dependency for persona node rows.
type PersonaStore interface {
	CreateBatch(ctx context.Context, nodes []domain.PersonaNode) error
	ListByUser(ctx context.Context, userID string) ([]domain.PersonaNode, error)
	DeleteByUser(ctx context.Context, userID string) ([]string, error)
}

// PersonaNodeInput is one label/weight pair from a seeding request.
type PersonaNodeInput struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// PersonaService seeds and manages the persona graph that synapse matching
// searches against. Each node is stored twice: the embedding as a point in
// the vector index, the label and weight as a database row.
type PersonaService struct {
	store    PersonaStore
	index    VectorIndex
	embedder Embedder
}

// NewPersonaService creates a persona service.
func NewPersonaService(store PersonaStore, index VectorIndex, embedder Embedder) *PersonaService {
	return &PersonaService{store: store, index: index, embedder: embedder}
}

// SeedNodes embeds the labels, upserts the vectors and persists the rows.
// Unlike the workflow stages this is strict: any embed or upsert failure
// aborts the whole request, because silently dropped nodes would surface
// later as missing synapses with no hint of why. Weights default to 1.0.
func (s *PersonaService) SeedNodes(ctx context.Context, userID string, inputs []PersonaNodeInput) ([]domain.PersonaNode, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("at least one node is required")
	}

	nodes := make([]domain.PersonaNode, 0, len(inputs))
	for i, in := range inputs {
		label := strings.TrimSpace(in.Label)
		if label == "" {
			return nil, fmt.Errorf("node %d has an empty label", i)
		}
		weight := in.Weight
		if weight <= 0 {
			weight = 1.0
		}

		vector, err := s.embedder.Embed(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("failed to embed %q: %w", label, err)
		}

		pointID := uuid.NewString()
		if err := s.index.UpsertPersonaNode(ctx, pointID, userID, label, weight, vector); err != nil {
			return nil, fmt.Errorf("failed to index %q: %w", label, err)
		}

		nodes = append(nodes, domain.PersonaNode{
			ID:      uuid.NewString(),
			UserID:  userID,
			Label:   label,
			Weight:  weight,
			PointID: pointID,
		})
	}

	if err := s.store.CreateBatch(ctx, nodes); err != nil {
		return nil, fmt.Errorf("failed to persist persona nodes: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldUserID: userID,
		logger.FieldCount:  len(nodes),
	}).Info(ctx, "persona nodes seeded")
	return nodes, nil
}

// ListNodes returns the user's persona nodes, oldest first.
func (s *PersonaService) ListNodes(ctx context.Context, userID string) ([]domain.PersonaNode, error) {
	return s.store.ListByUser(ctx, userID)
}

// DeleteNodes removes all of a user's persona nodes from the database and
// the vector index, returning how many rows were dropped. Rows go first;
// if the index delete then fails the orphaned points are unreachable to
// listings but still searchable, so the error is reported to the caller.
func (s *PersonaService) DeleteNodes(ctx context.Context, userID string) (int, error) {
	pointIDs, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete persona nodes: %w", err)
	}
	if len(pointIDs) > 0 {
		if err := s.index.DeletePoints(ctx, pointIDs); err != nil {
			logger.CtxWarn(ctx, "persona rows deleted but index cleanup failed: %v", err)
			return len(pointIDs), fmt.Errorf("failed to remove persona vectors: %w", err)
		}
	}
	return len(pointIDs), nil
}
