package service

import (
	"context"
	"fmt"

	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/repository"
)

// VectorIndex is the vector search dependency. The qdrant repository
// implements it in production; tests use an in-memory cosine index.
type VectorIndex interface {
	SearchPersonaNodes(ctx context.Context, userID string, vector []float32, topK int, threshold float32) ([]repository.PersonaHit, error)
	UpsertPersonaNode(ctx context.Context, pointID, userID, label string, weight float64, vector []float32) error
	UpsertUnified(ctx context.Context, pointID, userID, jobID string, vector []float32) error
	DeletePoints(ctx context.Context, pointIDs []string) error
	HealthCheck(ctx context.Context) error
}

// SynapseService finds overlaps between a conversation's interest vector
// and the user's stored persona nodes.
type SynapseService struct {
	index     VectorIndex
	threshold float32
	topK      int
}

// NewSynapseService creates a synapse matcher with configured threshold and
// result count.
func NewSynapseService(index VectorIndex, cfg *config.SynapseConfig) *SynapseService {
	s := &SynapseService{index: index, threshold: 0.70, topK: 3}
	if cfg != nil {
		if cfg.Threshold > 0 {
			s.threshold = cfg.Threshold
		}
		if cfg.TopK > 0 {
			s.topK = cfg.TopK
		}
	}
	return s
}

// TopSynapses returns the user's persona nodes most similar to the interest
// vector, above the threshold, strongest first. The weighted score folds in
// the node weight so a strong match on a minor facet ranks below an equal
// match on a core one.
func (s *SynapseService) TopSynapses(ctx context.Context, userID string, vector []float32) ([]domain.SynapseMatch, error) {
	if !hasSignal(vector) {
		// A zero interest vector cannot match anything above threshold.
		return []domain.SynapseMatch{}, nil
	}

	hits, err := s.index.SearchPersonaNodes(ctx, userID, vector, s.topK, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("persona search failed: %w", err)
	}

	matches := make([]domain.SynapseMatch, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, domain.SynapseMatch{
			Label:         h.Label,
			Similarity:    float64(h.Score),
			Weight:        h.Weight,
			WeightedScore: float64(h.Score) * h.Weight,
		})
	}
	return matches, nil
}
