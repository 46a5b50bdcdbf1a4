package service

import (
	"math"

	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
)

// Fusion input names, used as weight keys in the unified embedding.
const (
	fusionTranscript   = "transcript"
	fusionProfessional = "professional"
	fusionPersonality  = "personality"
)

// VectorFusion combines the transcript, professional and personality
// embeddings into one unified vector. Weights come from configuration and
// are renormalized over whichever inputs actually contributed, so a missing
// source shifts weight to the others instead of shrinking the vector.
type VectorFusion struct {
	weights map[string]float64
	dim     int
}

// NewVectorFusion creates a fusion component for the target dimension.
func NewVectorFusion(cfg *config.FusionConfig, dim int) *VectorFusion {
	weights := map[string]float64{
		fusionTranscript:   0.4,
		fusionProfessional: 0.4,
		fusionPersonality:  0.2,
	}
	if cfg != nil {
		if cfg.TranscriptWeight > 0 {
			weights[fusionTranscript] = cfg.TranscriptWeight
		}
		if cfg.ProfessionalWeight > 0 {
			weights[fusionProfessional] = cfg.ProfessionalWeight
		}
		if cfg.PersonalityWeight > 0 {
			weights[fusionPersonality] = cfg.PersonalityWeight
		}
	}
	if dim <= 0 {
		dim = 1536
	}
	return &VectorFusion{weights: weights, dim: dim}
}

// Fuse computes the weighted, L2-normalized combination of the inputs. Any
// nil, empty or all-zero input counts as missing. All inputs missing yields
// the zero vector with Degraded set; downstream similarity then scores near
// zero, which is an expected outcome, not an error. Fuse never fails.
func (f *VectorFusion) Fuse(transcript, professional, personality []float32) *domain.UnifiedEmbedding {
	inputs := []struct {
		name string
		vec  []float32
	}{
		{fusionTranscript, transcript},
		{fusionProfessional, professional},
		{fusionPersonality, personality},
	}

	var weightSum float64
	contributing := make(map[string][]float32)
	for _, in := range inputs {
		if !hasSignal(in.vec) {
			continue
		}
		contributing[in.name] = f.fit(in.name, in.vec)
		weightSum += f.weights[in.name]
	}

	if len(contributing) == 0 || weightSum == 0 {
		return &domain.UnifiedEmbedding{
			Vector:   make([]float32, f.dim),
			Weights:  map[string]float64{},
			Degraded: true,
		}
	}

	applied := make(map[string]float64, len(contributing))
	sum := make([]float32, f.dim)
	for name, vec := range contributing {
		w := f.weights[name] / weightSum
		applied[name] = w
		for i, v := range vec {
			sum[i] += float32(w) * v
		}
	}

	var norm float64
	for _, v := range sum {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return &domain.UnifiedEmbedding{
			Vector:   sum,
			Weights:  applied,
			Degraded: true,
		}
	}
	for i := range sum {
		sum[i] = float32(float64(sum[i]) / norm)
	}
	return &domain.UnifiedEmbedding{Vector: sum, Weights: applied, Degraded: false}
}

// fit pads or truncates a vector to the target dimension.
func (f *VectorFusion) fit(name string, vec []float32) []float32 {
	if len(vec) == f.dim {
		return vec
	}
	logger.Debug("fusion input %s has dimension %d, fitting to %d", name, len(vec), f.dim)
	fitted := make([]float32, f.dim)
	copy(fitted, vec)
	return fitted
}

// hasSignal reports whether the vector exists and carries any non-zero
// component. A zero vector is what the embedder substitutes on failure, so
// it is treated as missing rather than diluting the fusion.
func hasSignal(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return true
		}
	}
	return false
}
