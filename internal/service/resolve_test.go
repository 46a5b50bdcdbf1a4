package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/calebwren/rapport/internal/config"
	"github.com/calebwren/rapport/internal/domain"
)

type fakeScorer struct {
	score float64
	err   error
	calls int64
}

func (f *fakeScorer) ScoreCandidate(ctx context.Context, contextText string, c domain.Candidate) (float64, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.score, f.err
}

func resolverCfg(useLLM bool) *config.ResolverConfig {
	return &config.ResolverConfig{HighThreshold: 0.8, MediumThreshold: 0.6, UseLLM: useLLM}
}

func TestResolve_EmptyCandidatesShortCircuits(t *testing.T) {
	scorer := &fakeScorer{score: 0.9}
	r := NewIdentityResolver(resolverCfg(true), scorer)

	res := r.Resolve(context.Background(), "talked with Alex", nil, "react")

	if res.Status != ResolutionNoCandidates {
		t.Errorf("expected no_candidates, got %q", res.Status)
	}
	if res.TopCandidate != nil {
		t.Error("expected nil top candidate")
	}
	if len(res.AllCandidates) != 0 {
		t.Errorf("expected empty candidate list, got %d", len(res.AllCandidates))
	}
	if atomic.LoadInt64(&scorer.calls) != 0 {
		t.Error("scorer must not be invoked for empty input")
	}
}

func TestResolve_HeuristicRanking(t *testing.T) {
	candidates := []domain.Candidate{
		{DisplayName: "Jordan Smith", Source: domain.SourceWebSearch},
		{DisplayName: "Alex Chen", Source: domain.SourceProfessionalNetwork},
		{DisplayName: "Alex Chen", Source: domain.SourceDeveloperPlatform},
	}
	r := NewIdentityResolver(resolverCfg(false), nil)

	res := r.Resolve(context.Background(), "I met Alex Chen at the conference", candidates, "react hiking")

	// 0.5 base + 0.15 name + 0.1 professional prior + 0.1 multi-source.
	if res.TopCandidate == nil || res.TopCandidate.Source != domain.SourceProfessionalNetwork {
		t.Fatalf("expected professional-network candidate on top, got %+v", res.TopCandidate)
	}
	if res.TopCandidate.Confidence < 0.84 || res.TopCandidate.Confidence > 0.86 {
		t.Errorf("expected top confidence 0.85, got %f", res.TopCandidate.Confidence)
	}
	if res.Status != ResolutionHighConfidence {
		t.Errorf("expected high_confidence, got %q", res.Status)
	}
	last := res.AllCandidates[len(res.AllCandidates)-1]
	if last.DisplayName != "Jordan Smith" {
		t.Errorf("expected unmatched name ranked last, got %q", last.DisplayName)
	}
}

func TestResolve_StatusThresholds(t *testing.T) {
	tests := []struct {
		name       string
		candidate  domain.Candidate
		context    string
		wantStatus string
	}{
		{
			name:       "medium on name match only",
			candidate:  domain.Candidate{DisplayName: "Alex Chen", Source: domain.SourceWebSearch},
			context:    "catching up with alex chen",
			wantStatus: ResolutionMediumConfidence,
		},
		{
			name:       "low without any signal",
			candidate:  domain.Candidate{DisplayName: "Pat Doe", Source: domain.SourceWebSearch},
			context:    "completely unrelated chat",
			wantStatus: ResolutionLowConfidence,
		},
	}

	r := NewIdentityResolver(resolverCfg(false), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(context.Background(), tt.context, []domain.Candidate{tt.candidate}, "")
			if res.Status != tt.wantStatus {
				t.Errorf("expected %q, got %q (confidence %f)", tt.wantStatus, res.Status, res.TopCandidate.Confidence)
			}
		})
	}
}

func TestResolve_ScorerErrorFallsBackToHeuristic(t *testing.T) {
	scorer := &fakeScorer{err: errors.New("model unavailable")}
	r := NewIdentityResolver(resolverCfg(true), scorer)

	candidates := []domain.Candidate{
		{DisplayName: "Alex Chen", Source: domain.SourceProfessionalNetwork},
	}
	res := r.Resolve(context.Background(), "lunch with alex chen", candidates, "")

	if atomic.LoadInt64(&scorer.calls) != 1 {
		t.Errorf("expected one scorer attempt, got %d", scorer.calls)
	}
	// Heuristic: 0.5 + 0.15 name + 0.1 prior.
	if got := res.TopCandidate.Confidence; got < 0.74 || got > 0.76 {
		t.Errorf("expected heuristic fallback score 0.75, got %f", got)
	}
}

func TestResolve_ScorerResultClamped(t *testing.T) {
	scorer := &fakeScorer{score: 1.7}
	r := NewIdentityResolver(resolverCfg(true), scorer)

	res := r.Resolve(context.Background(), "", []domain.Candidate{
		{DisplayName: "Alex Chen", Source: domain.SourceWebSearch},
	}, "")

	if res.TopCandidate.Confidence != 1.0 {
		t.Errorf("expected clamp to 1.0, got %f", res.TopCandidate.Confidence)
	}
}
