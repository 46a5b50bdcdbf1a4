package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/logger"
	"github.com/calebwren/rapport/internal/prompts"
)

// OutreachService drafts a follow-up message suggestion from the
// conversation's interests and synapse overlaps.
type OutreachService struct {
	chat Chat
}

// NewOutreachService creates an outreach drafter. chat may be nil.
func NewOutreachService(chat Chat) *OutreachService {
	return &OutreachService{chat: chat}
}

// Draft returns a suggested message, or nil when drafting is disabled or
// the completion fails. Drafting is enrichment: it never surfaces an error.
func (s *OutreachService) Draft(ctx context.Context, name, interests string, synapses []domain.SynapseMatch, headline string) *string {
	if s.chat == nil || !s.chat.Enabled() {
		logger.CtxDebug(ctx, "outreach drafting disabled, skipping")
		return nil
	}

	if name == "" {
		name = "the person I just met"
	}
	if interests == "" {
		interests = "(none extracted)"
	}
	shared := "(none found)"
	if len(synapses) > 0 {
		labels := make([]string, 0, len(synapses))
		for _, m := range synapses {
			labels = append(labels, m.Label)
		}
		shared = strings.Join(labels, ", ")
	}
	if headline == "" {
		headline = "(no profile found)"
	}

	user := fmt.Sprintf(prompts.OutreachUserPrompt, name, interests, shared, headline)
	reply, err := s.chat.Complete(ctx, prompts.OutreachSystemPrompt, user)
	if err != nil {
		logger.CtxWarn(ctx, "outreach drafting failed: %v", err)
		return nil
	}
	if reply == "" {
		return nil
	}
	return &reply
}
