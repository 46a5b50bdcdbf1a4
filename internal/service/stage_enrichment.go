package service

import (
	"context"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
)

// EnrichmentStage looks the other party up across external sources and
// resolves which candidate, if any, is actually them. Every failure here
// degrades to an empty value; enrichment never fails a job.
type EnrichmentStage struct {
	dispatcher *SourceDispatcher
	resolver   *IdentityResolver
	sessionKey string
}

// NewEnrichmentStage creates the enrichment stage handler. sessionKey fixes
// the rate-limit and breaker scope for every job; leave it empty to scope
// per submitting user.
func NewEnrichmentStage(dispatcher *SourceDispatcher, resolver *IdentityResolver, sessionKey string) *EnrichmentStage {
	return &EnrichmentStage{dispatcher: dispatcher, resolver: resolver, sessionKey: sessionKey}
}

func (s *EnrichmentStage) Stage() domain.Stage {
	return domain.StageEnrichment
}

func (s *EnrichmentStage) Run(ctx context.Context, f *Flow) (domain.Stage, error) {
	in, err := f.Input()
	if err != nil {
		return "", err
	}

	interests := f.Interests()
	query := queryName(in.ContactName, f.Transcript())
	if query == "" {
		logger.CtxInfo(ctx, "no name to look up, skipping source dispatch")
		f.Data["dispatch"] = emptyDispatchResult()
		f.Data["resolution"] = &Resolution{
			AllCandidates: []domain.Candidate{},
			Status:        ResolutionNoCandidates,
		}
		return domain.StageSynthesis, nil
	}

	sessionKey := s.sessionKey
	if sessionKey == "" {
		sessionKey = f.Job.UserID
	}
	enabled := enabledSourceTags(in.EnabledSources)
	dispatch := s.dispatcher.Dispatch(ctx, query, interests, enabled, sessionKey)

	scoringContext := query
	if interests != "" {
		scoringContext = query + " " + interests
	}
	resolution := s.resolver.Resolve(ctx, scoringContext, dispatch.Candidates, interests)

	logger.With(logger.Fields{
		"sources_found":    len(dispatch.SourcesFound),
		"sources_failed":   len(dispatch.SourcesFailed),
		logger.FieldCount:  dispatch.TotalCandidates,
		logger.FieldStatus: resolution.Status,
	}).Info(ctx, "enrichment finished for %q", query)

	f.Data["dispatch"] = dispatch
	f.Data["resolution"] = resolution
	return domain.StageSynthesis, nil
}

// queryName picks who to search for. An explicit contact name from the
// submitter beats anything inferred from the audio; the first person entity
// in the transcript is the fallback.
func queryName(hint string, t *domain.Transcript) string {
	if name := strings.TrimSpace(hint); name != "" {
		return name
	}
	if t == nil {
		return ""
	}
	for _, e := range t.Entities {
		if e.Type == domain.EntityPerson {
			if name := strings.TrimSpace(e.Value); name != "" {
				return name
			}
		}
	}
	return ""
}

// enabledSourceTags maps the submitted source list to tags, defaulting to
// every known source when the submitter did not narrow the set.
func enabledSourceTags(requested []string) []domain.SourceTag {
	if len(requested) == 0 {
		return domain.AllSourceTags()
	}
	tags := make([]domain.SourceTag, 0, len(requested))
	for _, s := range requested {
		tags = append(tags, domain.SourceTag(s))
	}
	return tags
}

func emptyDispatchResult() *DispatchResult {
	return &DispatchResult{
		SourcesQueried: []domain.SourceTag{},
		SourcesFound:   []domain.SourceTag{},
		SourcesFailed:  []domain.SourceTag{},
		Candidates:     []domain.Candidate{},
	}
}
