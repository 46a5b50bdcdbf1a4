package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
)

// Resolution statuses, classified from the top candidate's score.
const (
	ResolutionNoCandidates     = "no_candidates"
	ResolutionHighConfidence   = "high_confidence"
	ResolutionMediumConfidence = "medium_confidence"
	ResolutionLowConfidence    = "low_confidence"
)

// Resolution is the ranked outcome of identity resolution.
type Resolution struct {
	TopCandidate  *domain.Candidate  `json:"top_candidate,omitempty"`
	AllCandidates []domain.Candidate `json:"all_candidates"`
	Status        string             `json:"status"`
}

// CandidateScorer scores how likely a candidate is the person from the
// conversation, in [0,1]. The chat-backed scorer implements this; any error
// makes the resolver fall back to its built-in heuristic for that candidate.
type CandidateScorer interface {
	ScoreCandidate(ctx context.Context, contextText string, candidate domain.Candidate) (float64, error)
}

// IdentityResolver ranks profile candidates against the conversation.
type IdentityResolver struct {
	high   float64
	medium float64
	scorer CandidateScorer
}

// NewIdentityResolver creates a resolver with the configured confidence
// thresholds. scorer may be nil, which forces pure heuristic scoring.
func NewIdentityResolver(cfg *config.ResolverConfig, scorer CandidateScorer) *IdentityResolver {
	r := &IdentityResolver{high: 0.8, medium: 0.6, scorer: scorer}
	if cfg != nil {
		if cfg.HighThreshold > 0 {
			r.high = cfg.HighThreshold
		}
		if cfg.MediumThreshold > 0 {
			r.medium = cfg.MediumThreshold
		}
		if !cfg.UseLLM {
			r.scorer = nil
		}
	}
	return r
}

// Resolve scores and ranks the candidates. With no candidates it returns
// status no_candidates immediately and never touches the scorer. Candidates
// are scored independently and concurrently; the returned slice is sorted
// by descending confidence with input order preserved among ties.
func (r *IdentityResolver) Resolve(ctx context.Context, contextText string, candidates []domain.Candidate, interests string) *Resolution {
	if len(candidates) == 0 {
		return &Resolution{AllCandidates: []domain.Candidate{}, Status: ResolutionNoCandidates}
	}

	ranked := make([]domain.Candidate, len(candidates))
	copy(ranked, candidates)
	multiSource := sourcesPerName(ranked)

	var wg sync.WaitGroup
	for i := range ranked {
		wg.Add(1)
		go func(c *domain.Candidate) {
			defer wg.Done()
			c.Confidence = r.scoreOne(ctx, contextText, interests, *c, multiSource)
		}(&ranked[i])
	}
	wg.Wait()

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	res := &Resolution{
		TopCandidate:  &ranked[0],
		AllCandidates: ranked,
	}
	switch top := ranked[0].Confidence; {
	case top >= r.high:
		res.Status = ResolutionHighConfidence
	case top >= r.medium:
		res.Status = ResolutionMediumConfidence
	default:
		res.Status = ResolutionLowConfidence
	}
	return res
}

func (r *IdentityResolver) scoreOne(ctx context.Context, contextText, interests string, c domain.Candidate, multiSource map[string]int) float64 {
	if r.scorer != nil {
		prompt := contextText
		if interests != "" {
			prompt = contextText + "\nInterests: " + interests
		}
		score, err := r.scorer.ScoreCandidate(ctx, prompt, c)
		if err == nil {
			return clampScore(score)
		}
		logger.CtxWarn(ctx, "candidate scoring call failed, using heuristic: %v", err)
	}
	return heuristicScore(contextText, c, multiSource)
}

// heuristicScore combines name overlap, a source-type prior and cross-source
// presence. It needs no network, so it always produces a score when the
// scoring model cannot.
func heuristicScore(contextText string, c domain.Candidate, multiSource map[string]int) float64 {
	score := 0.5

	if nameOverlaps(c.DisplayName, contextText) {
		score += 0.15
	}

	// Identity-verifying platforms get a stronger prior than general search.
	switch c.Source {
	case domain.SourceProfessionalNetwork:
		score += 0.1
	case domain.SourceDeveloperPlatform, domain.SourceMicroblog:
		score += 0.05
	}

	if multiSource[nameKey(c.DisplayName)] >= 2 {
		score += 0.1
	}
	return clampScore(score)
}

// nameOverlaps reports whether at least half of the candidate's name tokens
// appear as words in the conversational context.
func nameOverlaps(name, contextText string) bool {
	ctxWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(contextText)) {
		ctxWords[strings.Trim(w, ".,!?;:\"'()")] = true
	}

	var total, matched int
	for _, tok := range strings.Fields(strings.ToLower(name)) {
		tok = strings.Trim(tok, ".,!?;:\"'()")
		if len(tok) < 2 {
			continue
		}
		total++
		if ctxWords[tok] {
			matched++
		}
	}
	return total > 0 && matched*2 >= total
}

// sourcesPerName counts how many distinct sources produced each display name.
func sourcesPerName(candidates []domain.Candidate) map[string]int {
	perName := make(map[string]map[domain.SourceTag]bool)
	for _, c := range candidates {
		key := nameKey(c.DisplayName)
		if perName[key] == nil {
			perName[key] = make(map[domain.SourceTag]bool)
		}
		perName[key][c.Source] = true
	}
	counts := make(map[string]int, len(perName))
	for key, sources := range perName {
		counts[key] = len(sources)
	}
	return counts
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
