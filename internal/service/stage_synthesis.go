package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
)

// MetricStore persists per-job quality metrics.
type MetricStore interface {
	Create(ctx context.Context, m *domain.InteractionMetric) error
}

// Profile fields worth embedding, in the order they should read. Slices of
// strings (skills, topics) are appended after the scalar fields.
var profileTextKeys = []string{"headline", "title", "bio", "snippet", "company", "channel", "location"}
var profileListKeys = []string{"skills", "topics", "recent_topics"}

// SynthesisStage folds everything the earlier stages gathered into the final
// result: the unified person embedding, persona synapses, a social quadrant,
// a scrubbed interest summary and an optional outreach draft. Each
// enrichment input degrades on its own; only failing to assemble the result
// is fatal.
type SynthesisStage struct {
	embedder Embedder
	fusion   *VectorFusion
	synapses *SynapseService
	outreach *OutreachService
	index    VectorIndex
	metrics  MetricStore
}

// NewSynthesisStage creates the synthesis stage handler.
func NewSynthesisStage(embedder Embedder, fusion *VectorFusion, synapses *SynapseService, outreach *OutreachService, index VectorIndex, metrics MetricStore) *SynthesisStage {
	return &SynthesisStage{
		embedder: embedder,
		fusion:   fusion,
		synapses: synapses,
		outreach: outreach,
		index:    index,
		metrics:  metrics,
	}
}

func (s *SynthesisStage) Stage() domain.Stage {
	return domain.StageSynthesis
}

func (s *SynthesisStage) Run(ctx context.Context, f *Flow) (domain.Stage, error) {
	in, err := f.Input()
	if err != nil {
		in = &JobInput{}
	}

	interests := f.Interests()
	transcriptVec := f.InterestsVector()
	dispatch := f.Dispatch()
	resolution := f.Resolution()

	var top *domain.Candidate
	resolutionStatus := ResolutionNoCandidates
	if resolution != nil {
		top = resolution.TopCandidate
		resolutionStatus = resolution.Status
	}

	var found []domain.SourceTag
	if dispatch != nil {
		found = dispatch.SourcesFound
	}
	quadrant := ComputeSocialQuadrant(found, interests)

	// The professional and personality embeddings are independent network
	// calls; run them side by side.
	professionalText := profileText(top)
	personaText := personalityText(interests, quadrant)
	var profVec, persVec []float32
	var wg sync.WaitGroup
	if professionalText != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			profVec = EmbedOrZero(ctx, s.embedder, professionalText)
		}()
	}
	if personaText != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			persVec = EmbedOrZero(ctx, s.embedder, personaText)
		}()
	}
	wg.Wait()

	unified := s.fusion.Fuse(transcriptVec, profVec, persVec)

	matches, err := s.synapses.TopSynapses(ctx, f.Job.UserID, transcriptVec)
	if err != nil {
		logger.CtxWarn(ctx, "synapse lookup failed: %v", err)
		matches = nil
	}
	if matches == nil {
		matches = []domain.SynapseMatch{}
	}

	cleanInterests, interestHits := ScrubPII(interests)
	piiDetected := countPII(interestHits)
	if t := f.Transcript(); t != nil {
		_, transcriptHits := ScrubPII(t.Text)
		piiDetected += countPII(transcriptHits)
	}

	draftName := in.ContactName
	if top != nil {
		draftName = top.DisplayName
	}
	draft := s.outreach.Draft(ctx, draftName, cleanInterests, matches, candidateHeadline(top))

	if !unified.Degraded {
		if err := s.index.UpsertUnified(ctx, uuid.NewString(), f.Job.UserID, f.Job.ID, unified.Vector); err != nil {
			logger.CtxWarn(ctx, "failed to index unified embedding: %v", err)
		}
	}

	degraded := unified.Degraded
	if dispatch != nil && len(dispatch.SourcesQueried) > 0 && len(dispatch.SourcesFound) == 0 {
		degraded = true
	}

	var dispatchSummary interface{}
	if dispatch != nil {
		dispatchSummary = domain.JSONMap{
			"sources_queried":  dispatch.SourcesQueried,
			"sources_found":    dispatch.SourcesFound,
			"sources_failed":   dispatch.SourcesFailed,
			"total_candidates": dispatch.TotalCandidates,
			"elapsed_ms":       dispatch.ElapsedMs,
		}
	}

	f.Result = domain.JSONMap{
		"interests":         cleanInterests,
		"synapses":          matches,
		"top_candidate":     top,
		"resolution_status": resolutionStatus,
		"dispatch":          dispatchSummary,
		"unified_embedding": domain.JSONMap{
			"weights":  unified.Weights,
			"degraded": unified.Degraded,
		},
		"social_quadrant": quadrant,
		"draft_message":   draft,
		"pii_detected":    piiDetected,
		"degraded":        degraded,
	}

	s.recordMetric(ctx, f, dispatch, matches, piiDetected, degraded)
	return domain.StageSuccess, nil
}

func (s *SynthesisStage) recordMetric(ctx context.Context, f *Flow, dispatch *DispatchResult, matches []domain.SynapseMatch, piiDetected int, degraded bool) {
	m := &domain.InteractionMetric{
		ID:           uuid.NewString(),
		JobID:        f.Job.ID,
		UserID:       f.Job.UserID,
		SynapseCount: len(matches),
		PIIDetected:  piiDetected,
		Degraded:     degraded,
	}
	if len(matches) > 0 {
		var sum float64
		for _, match := range matches {
			sum += match.Similarity
		}
		m.TopSynapseSimilarity = matches[0].Similarity
		m.AvgSynapseSimilarity = sum / float64(len(matches))
	}
	if dispatch != nil {
		m.SourcesFound = len(dispatch.SourcesFound)
		m.SourcesFailed = len(dispatch.SourcesFailed)
		m.CandidateCount = dispatch.TotalCandidates
	}
	if f.Job.StartedAt != nil {
		m.ProcessingTimeMs = time.Since(*f.Job.StartedAt).Milliseconds()
	}
	if err := s.metrics.Create(ctx, m); err != nil {
		logger.CtxWarn(ctx, "failed to record interaction metric: %v", err)
	}
}

// countPII sums redaction hits across all pattern types.
func countPII(hits map[string]int) int {
	total := 0
	for _, n := range hits {
		total += n
	}
	return total
}

// profileText flattens a candidate's platform payload into one embeddable
// line: display name, then the scalar text fields, then list fields.
func profileText(c *domain.Candidate) string {
	if c == nil {
		return ""
	}
	parts := []string{c.DisplayName}
	for _, key := range profileTextKeys {
		if v, ok := c.Profile[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	for _, key := range profileListKeys {
		for _, item := range stringList(c.Profile[key]) {
			parts = append(parts, item)
		}
	}
	return strings.Join(parts, " ")
}

// stringList handles both live []string values and the []interface{} shape
// they take after a JSON round trip through stage data.
func stringList(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// personalityText builds the embedding input for how the person carries
// themselves, from what they talked about plus the quadrant read.
func personalityText(interests string, q domain.SocialQuadrant) string {
	parts := make([]string, 0, 2)
	if interests != "" {
		parts = append(parts, interests)
	}
	if q.ProfileType != "" && q.ProfileType != "balanced" {
		parts = append(parts, strings.ReplaceAll(q.ProfileType, "_", " "))
	}
	return strings.Join(parts, " ")
}

// candidateHeadline picks the one-line descriptor for the outreach prompt.
func candidateHeadline(c *domain.Candidate) string {
	if c == nil {
		return ""
	}
	for _, key := range []string{"headline", "title", "bio"} {
		if v, ok := c.Profile[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
